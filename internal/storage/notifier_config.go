package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type ChannelType string

const (
	ChannelDiscord  ChannelType = "discord"
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelWebhook  ChannelType = "webhook"
)

// ChannelConfig is the decoded, per-type notifier configuration.
type ChannelConfig interface {
	Channel() ChannelType
	Validate() error
}

type DiscordConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chatId"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

// WebhookConfig posts the raw alert payload to URL.
// Older rows store the target under "webhookUrl"; both keys decode.
type WebhookConfig struct {
	URL string `json:"url"`
}

func (DiscordConfig) Channel() ChannelType  { return ChannelDiscord }
func (TelegramConfig) Channel() ChannelType { return ChannelTelegram }
func (SlackConfig) Channel() ChannelType    { return ChannelSlack }
func (WebhookConfig) Channel() ChannelType  { return ChannelWebhook }

func (c DiscordConfig) Validate() error { return validateHTTPURL("webhookUrl", c.WebhookURL) }
func (c SlackConfig) Validate() error   { return validateHTTPURL("webhookUrl", c.WebhookURL) }
func (c WebhookConfig) Validate() error { return validateHTTPURL("url", c.URL) }

func (c TelegramConfig) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("token is required")
	}
	if strings.TrimSpace(c.ChatID) == "" {
		return fmt.Errorf("chatId is required")
	}
	return nil
}

func (c *WebhookConfig) UnmarshalJSON(b []byte) error {
	var raw struct {
		URL        string `json:"url"`
		WebhookURL string `json:"webhookUrl"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.URL = raw.URL
	if c.URL == "" {
		c.URL = raw.WebhookURL
	}
	return nil
}

// KnownChannel reports whether t has a decoder in this build.
func KnownChannel(t ChannelType) bool {
	switch t {
	case ChannelDiscord, ChannelTelegram, ChannelSlack, ChannelWebhook:
		return true
	default:
		return false
	}
}

// DecodeChannelConfig parses and validates the JSON blob stored for a notifier.
// Errors wrap ErrInvalidNotifierConfig.
func DecodeChannelConfig(t ChannelType, raw []byte) (ChannelConfig, error) {
	var cfg ChannelConfig
	switch t {
	case ChannelDiscord:
		cfg = &DiscordConfig{}
	case ChannelTelegram:
		cfg = &TelegramConfig{}
	case ChannelSlack:
		cfg = &SlackConfig{}
	case ChannelWebhook:
		cfg = &WebhookConfig{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotifierConfig, t)
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidNotifierConfig, t, err)
	}
	// Keep value semantics for callers.
	switch c := cfg.(type) {
	case *DiscordConfig:
		cfg = *c
	case *TelegramConfig:
		cfg = *c
	case *SlackConfig:
		cfg = *c
	case *WebhookConfig:
		cfg = *c
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidNotifierConfig, t, err)
	}
	return cfg, nil
}

// EncodeChannelConfig is the inverse of DecodeChannelConfig.
func EncodeChannelConfig(c ChannelConfig) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidNotifierConfig)
	}
	return json.Marshal(c)
}

func validateNotifier(n Notifier) error {
	if strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidNotifierConfig)
	}
	if n.Config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidNotifierConfig)
	}
	if n.Config.Channel() != n.Type {
		return fmt.Errorf("%w: type %q does not match config for %q", ErrInvalidNotifierConfig, n.Type, n.Config.Channel())
	}
	if err := n.Config.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidNotifierConfig, n.Type, err)
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%s: %v", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: host is required", field)
	}
	return nil
}
