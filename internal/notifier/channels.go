package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"liteping/internal/storage"
)

const (
	botUsername = "LitePing Bot"

	discordColorDown = 15548997
	discordColorUp   = 5763719

	slackColorDown = "#ef4444"
	slackColorUp   = "#22c55e"
)

// Sender delivers an alert over one channel type.
type Sender interface {
	Send(ctx context.Context, cfg storage.ChannelConfig, a Alert) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, cfg storage.ChannelConfig, a Alert) error

func (f SenderFunc) Send(ctx context.Context, cfg storage.ChannelConfig, a Alert) error {
	return f(ctx, cfg, a)
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

type slackAttachment struct {
	Color string `json:"color"`
	Title string `json:"title"`
	Text  string `json:"text"`
	TS    int64  `json:"ts"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

// webhookSenders posts JSON to HTTP endpoints.
type webhookSenders struct {
	client *http.Client
	now    func() time.Time
}

func (w webhookSenders) discord(ctx context.Context, cfg storage.ChannelConfig, a Alert) error {
	c, ok := cfg.(storage.DiscordConfig)
	if !ok {
		return fmt.Errorf("discord: unexpected config %T", cfg)
	}
	color := discordColorUp
	if a.Down() {
		color = discordColorDown
	}
	return postJSON(ctx, w.client, c.WebhookURL, discordPayload{
		Username: botUsername,
		Embeds: []discordEmbed{{
			Title:       a.Title,
			Description: a.Description,
			Color:       color,
			Timestamp:   w.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		}},
	})
}

func (w webhookSenders) slack(ctx context.Context, cfg storage.ChannelConfig, a Alert) error {
	c, ok := cfg.(storage.SlackConfig)
	if !ok {
		return fmt.Errorf("slack: unexpected config %T", cfg)
	}
	color := slackColorUp
	if a.Down() {
		color = slackColorDown
	}
	return postJSON(ctx, w.client, c.WebhookURL, slackPayload{
		Attachments: []slackAttachment{{
			Color: color,
			Title: a.Title,
			Text:  a.Description,
			TS:    w.now().Unix(),
		}},
	})
}

func (w webhookSenders) webhook(ctx context.Context, cfg storage.ChannelConfig, a Alert) error {
	c, ok := cfg.(storage.WebhookConfig)
	if !ok {
		return fmt.Errorf("webhook: unexpected config %T", cfg)
	}
	return postJSON(ctx, w.client, c.URL, a)
}

// postJSON treats any non-2xx answer as a failed delivery.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
