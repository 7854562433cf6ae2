package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"liteping/internal/storage"

	tele "gopkg.in/telebot.v4"
)

const (
	iconDown = "🚨"
	iconUp   = "✅"
)

// chatRecipient lets numeric ids and @channel names both be targets.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// telegramSender sends through telebot. Bots are created offline (no getMe
// round-trip) and cached per token.
type telegramSender struct {
	apiURL string
	client *http.Client

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func newTelegramSender(apiURL string, client *http.Client) *telegramSender {
	return &telegramSender{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: client,
		bots:   map[string]*tele.Bot{},
	}
}

func (t *telegramSender) bot(token string) (*tele.Bot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok := t.bots[token]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     t.apiURL,
		Token:   token,
		Client:  t.client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	t.bots[token] = b
	return b, nil
}

// TelegramText renders an alert as a Markdown message body.
func TelegramText(a Alert) string {
	icon := iconUp
	if a.Down() {
		icon = iconDown
	}
	return fmt.Sprintf("*%s %s*\n\n%s", icon, a.Title, a.Description)
}

// Send ignores ctx beyond an early cancellation check; telebot bounds the
// call with the client timeout.
func (t *telegramSender) Send(ctx context.Context, cfg storage.ChannelConfig, a Alert) error {
	c, ok := cfg.(storage.TelegramConfig)
	if !ok {
		return fmt.Errorf("telegram: unexpected config %T", cfg)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := t.bot(c.Token)
	if err != nil {
		return err
	}
	_, err = b.Send(chatRecipient(c.ChatID), TelegramText(a), &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	return err
}
