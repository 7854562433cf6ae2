package notifier

import (
	"context"
	"net/http"
	"sync"
	"time"

	"liteping/internal/storage"
	logx "liteping/pkg/logx"

	"golang.org/x/time/rate"
)

// NotifierLister is the slice of the store the dispatcher reads.
type NotifierLister interface {
	ListActiveNotifiers(ctx context.Context) ([]storage.Notifier, error)
}

// ResultFunc observes each finished delivery.
type ResultFunc func(channel storage.ChannelType, err error)

type Options struct {
	// Client is used for webhook-style channels. Nil builds one from Config.Timeout.
	Client *http.Client
	// TelegramAPIURL overrides the Bot API endpoint.
	TelegramAPIURL string
	// Senders replaces or adds channel implementations.
	Senders  map[storage.ChannelType]Sender
	OnResult ResultFunc
	Now      func() time.Time
}

// Dispatcher delivers alerts to every active notifier in parallel.
//
// It is safe for concurrent use.
type Dispatcher struct {
	mu sync.Mutex

	log     logx.Logger
	store   NotifierLister
	senders map[storage.ChannelType]Sender
	onRes   ResultFunc

	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, store NotifierLister, log logx.Logger, opts Options) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		log:   log.With(logx.String("comp", "notifier")),
		store: store,
		onRes: opts.OnResult,
	}
	d.applyLocked(cfg)

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: d.cfg.Timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	hooks := webhookSenders{client: client, now: now}
	d.senders = map[storage.ChannelType]Sender{
		storage.ChannelDiscord:  SenderFunc(hooks.discord),
		storage.ChannelSlack:    SenderFunc(hooks.slack),
		storage.ChannelWebhook:  SenderFunc(hooks.webhook),
		storage.ChannelTelegram: newTelegramSender(opts.TelegramAPIURL, client),
	}
	for k, v := range opts.Senders {
		d.senders[k] = v
	}
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = DefaultRatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	d.cfg = cfg
	// Burst = rate per sec, so one incident wave across channels is not delayed.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Language is the alert language currently configured.
func (d *Dispatcher) Language() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.Language
}

// Dispatch delivers a to every active notifier and waits for all of them.
// It never returns an error; per-channel failures are logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, a Alert) Report {
	var rep Report
	list, err := d.store.ListActiveNotifiers(ctx)
	if err != nil {
		d.log.Error("load notifiers failed", logx.Err(err))
		return rep
	}

	d.mu.Lock()
	lim := d.limiter
	timeout := d.cfg.Timeout
	d.mu.Unlock()

	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, n := range list {
		sender, ok := d.senders[n.Type]
		if !ok || n.Config == nil {
			d.log.Warn("unknown notifier type; skipping", logx.String("notifier", n.Name), logx.String("type", string(n.Type)))
			rep.Skipped++
			continue
		}
		rep.Attempted++
		wg.Add(1)
		go func(n storage.Notifier, sender Sender) {
			defer wg.Done()
			err := d.send(ctx, lim, timeout, sender, n, a)

			rmu.Lock()
			if err != nil {
				rep.Failed++
			} else {
				rep.Delivered++
			}
			rmu.Unlock()
		}(n, sender)
	}
	wg.Wait()
	return rep
}

func (d *Dispatcher) send(ctx context.Context, lim *rate.Limiter, timeout time.Duration, sender Sender, n storage.Notifier, a Alert) error {
	err := lim.Wait(ctx)
	if err == nil {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = sender.Send(callCtx, n.Config, a)
		cancel()
	}

	item := HistoryItem{At: time.Now(), Channel: string(n.Type), Notifier: n.Name, Title: a.Title}
	if err != nil {
		item.Error = err.Error()
		// Reported, not fatal.
		d.log.Warn("notify failed",
			logx.String("notifier", n.Name),
			logx.String("type", string(n.Type)),
			logx.Err(err),
		)
	} else {
		d.log.Debug("notify sent", logx.String("notifier", n.Name), logx.String("type", string(n.Type)))
	}
	d.appendHistory(item)
	if d.onRes != nil {
		d.onRes(n.Type, err)
	}
	return err
}

// History returns recent deliveries, oldest first.
func (d *Dispatcher) History() []HistoryItem {
	d.hmu.Lock()
	out := append([]HistoryItem(nil), d.history...)
	d.hmu.Unlock()
	return out
}

func (d *Dispatcher) appendHistory(it HistoryItem) {
	d.hmu.Lock()
	d.history = append(d.history, it)
	if len(d.history) > 300 {
		d.history = d.history[len(d.history)-300:]
	}
	d.hmu.Unlock()
}
