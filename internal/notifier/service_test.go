package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"liteping/internal/storage"
	logx "liteping/pkg/logx"
)

type fakeLister struct {
	list []storage.Notifier
	err  error
}

func (f fakeLister) ListActiveNotifiers(context.Context) ([]storage.Notifier, error) {
	return f.list, f.err
}

// recorder captures request bodies per path.
type recorder struct {
	mu     sync.Mutex
	bodies map[string][]byte
}

func (r *recorder) handler(status map[string]int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var raw json.RawMessage
		_ = json.NewDecoder(req.Body).Decode(&raw)
		r.mu.Lock()
		if r.bodies == nil {
			r.bodies = map[string][]byte{}
		}
		r.bodies[req.URL.Path] = raw
		r.mu.Unlock()
		if code, ok := status[req.URL.Path]; ok {
			w.WriteHeader(code)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func (r *recorder) body(path string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[path]
}

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func TestDispatchPartialFailure(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(map[string]int{"/discord": http.StatusInternalServerError}))
	defer srv.Close()

	lister := fakeLister{list: []storage.Notifier{
		{ID: "d", Name: "discord", Type: storage.ChannelDiscord, Config: storage.DiscordConfig{WebhookURL: srv.URL + "/discord"}, Active: true},
		{ID: "s", Name: "slack", Type: storage.ChannelSlack, Config: storage.SlackConfig{WebhookURL: srv.URL + "/slack"}, Active: true},
	}}

	var (
		mu      sync.Mutex
		results = map[storage.ChannelType]error{}
	)
	d := New(Config{}, lister, logx.Nop(), Options{
		Now: func() time.Time { return fixedNow },
		OnResult: func(ch storage.ChannelType, err error) {
			mu.Lock()
			results[ch] = err
			mu.Unlock()
		},
	})

	rep := d.Dispatch(context.Background(), Alert{Title: "Service Down: API", Description: "**URL:** https://api.example", Status: StatusDown})
	if rep != (Report{Attempted: 2, Delivered: 1, Failed: 1}) {
		t.Fatalf("report = %+v", rep)
	}
	if results[storage.ChannelDiscord] == nil || results[storage.ChannelSlack] != nil {
		t.Fatalf("results = %v", results)
	}

	var slack slackPayload
	if err := json.Unmarshal(rec.body("/slack"), &slack); err != nil {
		t.Fatalf("slack body: %v", err)
	}
	want := slackAttachment{Color: slackColorDown, Title: "Service Down: API", Text: "**URL:** https://api.example", TS: fixedNow.Unix()}
	if len(slack.Attachments) != 1 || slack.Attachments[0] != want {
		t.Fatalf("slack payload = %+v", slack)
	}

	var discord discordPayload
	if err := json.Unmarshal(rec.body("/discord"), &discord); err != nil {
		t.Fatalf("discord body: %v", err)
	}
	if discord.Username != "LitePing Bot" || len(discord.Embeds) != 1 {
		t.Fatalf("discord payload = %+v", discord)
	}
	if e := discord.Embeds[0]; e.Color != 15548997 || e.Timestamp != "2024-05-01T12:30:00.000Z" {
		t.Fatalf("discord embed = %+v", e)
	}

	hist := d.History()
	if len(hist) != 2 {
		t.Fatalf("history = %+v", hist)
	}
}

func TestDispatchWebhookSendsAlertVerbatim(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(nil))
	defer srv.Close()

	lister := fakeLister{list: []storage.Notifier{
		{ID: "w", Name: "hook", Type: storage.ChannelWebhook, Config: storage.WebhookConfig{URL: srv.URL + "/hook"}, Active: true},
	}}
	a := Alert{Title: "Service Recovered: API", Description: "**Downtime:** ~2 mins", Status: StatusUp}
	rep := New(Config{}, lister, logx.Nop(), Options{}).Dispatch(context.Background(), a)
	if rep.Delivered != 1 {
		t.Fatalf("report = %+v", rep)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.body("/hook"), &got); err != nil {
		t.Fatalf("webhook body: %v", err)
	}
	if len(got) != 3 || got["title"] != a.Title || got["description"] != a.Description || got["status"] != "UP" {
		t.Fatalf("webhook body = %v", got)
	}
}

func TestDispatchTelegram(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		params map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&params)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1714566600,"chat":{"id":-1001,"type":"supergroup"}}}`))
	}))
	defer srv.Close()

	lister := fakeLister{list: []storage.Notifier{
		{ID: "t", Name: "tg", Type: storage.ChannelTelegram, Config: storage.TelegramConfig{Token: "123:abc", ChatID: "-1001"}, Active: true},
	}}
	d := New(Config{}, lister, logx.Nop(), Options{TelegramAPIURL: srv.URL})
	rep := d.Dispatch(context.Background(), Alert{Title: "Service Down: API", Description: "boom", Status: StatusDown})
	if rep.Delivered != 1 {
		t.Fatalf("report = %+v, history = %+v", rep, d.History())
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if params["text"] != "*🚨 Service Down: API*\n\nboom" {
		t.Fatalf("text = %q", params["text"])
	}
	if params["parse_mode"] != "Markdown" {
		t.Fatalf("parse_mode = %v", params["parse_mode"])
	}
	if params["chat_id"] != "-1001" {
		t.Fatalf("chat_id = %v", params["chat_id"])
	}
}

func TestDispatchSkipsUnknownAndSurvivesLoadError(t *testing.T) {
	lister := fakeLister{list: []storage.Notifier{{ID: "x", Name: "pager", Type: "pagerduty", Active: true}}}
	rep := New(Config{}, lister, logx.Nop(), Options{}).Dispatch(context.Background(), Alert{Status: StatusDown})
	if rep != (Report{Skipped: 1}) {
		t.Fatalf("report = %+v", rep)
	}

	rep = New(Config{}, fakeLister{err: errors.New("db locked")}, logx.Nop(), Options{}).Dispatch(context.Background(), Alert{})
	if rep != (Report{}) {
		t.Fatalf("report on load error = %+v", rep)
	}
}

func TestDispatchCustomSenderTimeout(t *testing.T) {
	slow := SenderFunc(func(ctx context.Context, _ storage.ChannelConfig, _ Alert) error {
		<-ctx.Done()
		return ctx.Err()
	})
	lister := fakeLister{list: []storage.Notifier{
		{ID: "d", Name: "slow", Type: storage.ChannelDiscord, Config: storage.DiscordConfig{WebhookURL: "https://discord.example"}, Active: true},
	}}
	d := New(Config{Timeout: 20 * time.Millisecond}, lister, logx.Nop(), Options{
		Senders: map[storage.ChannelType]Sender{storage.ChannelDiscord: slow},
	})
	rep := d.Dispatch(context.Background(), Alert{Status: StatusDown})
	if rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if h := d.History(); len(h) != 1 || !strings.Contains(h[0].Error, "deadline") {
		t.Fatalf("history = %+v", h)
	}
}
