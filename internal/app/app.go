package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"liteping/internal/checker"
	"liteping/internal/config"
	"liteping/internal/httpapi"
	"liteping/internal/incident"
	"liteping/internal/notifier"
	"liteping/internal/observability/metrics"
	"liteping/internal/retention"
	rtsup "liteping/internal/runtime/supervisor"
	"liteping/internal/storage"
	"liteping/internal/task/scheduler"
	logx "liteping/pkg/logx"
)

// TickSchedule is the scheduler entry that drives the checker.
const TickSchedule = "tick"

type App struct {
	cfgm *config.ConfigManager

	// sup runs the app's own loops (config, http). bg runs work spawned by
	// ticks (alerts, the daily job) and is drained on Stop.
	sup *rtsup.Supervisor
	bg  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store
	mets  *metrics.Metrics

	notif   *notifier.Dispatcher
	daily   *retention.Job
	checker *checker.Service
	sched   *scheduler.Service

	// stopTicks cancels the scheduler's job ctx. It is detached from the
	// Start ctx so a signal does not abort a tick mid-flight.
	stopTicks context.CancelFunc

	httpCfg httpapi.Config
	httpOn  bool
	http    *httpapi.Server

	mu sync.Mutex
	rt config.Runtime
}

// NewApp loads cfgPath and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	sc, persistent := mapStorageConfig(cfg, rt)
	if !persistent {
		log.Warn("storage disabled; using in-memory store, state is lost on restart")
	}
	st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	if err := applySeed(context.Background(), st, cfg.Seed, time.Now(), log); err != nil {
		log.Warn("seed incomplete", logx.Err(err))
	}

	a := &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logSvc,
		store: st,
		mets:  metrics.New(),
		rt:    rt,
	}
	a.bg = rtsup.New(context.Background(),
		rtsup.WithLogger(log.With(logx.String("comp", "background"))),
		rtsup.WithCancelOnError(false),
	)

	a.notif = notifier.New(mapNotifierConfig(cfg, rt), st, log, notifier.Options{
		TelegramAPIURL: cfg.Notify.TelegramAPIURL,
		OnResult:       a.mets.ObserveDelivery,
	})

	a.daily = retention.New(st, log)
	a.daily.OnResult = a.mets.ObserveRetention

	machine := incident.NewMachine(st, a.notif, a.bg, log)
	a.checker = checker.New(st, newProber(cfg, rt, log), newRegion(cfg, rt, log), machine, a.daily, a.bg, log, checker.Options{
		BatchSize: cfg.Probe.BatchSize,
	})

	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log)
	if err := a.sched.AddCron(TickSchedule, config.ScheduleOrDefault(cfg.Scheduler.Spec), 0, a.tick); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register tick: %w", err)
	}

	if hc, ok := mapHTTPConfig(cfg, rt); ok {
		if err := hc.Check(); err != nil {
			_ = st.Close()
			return nil, err
		}
		a.httpCfg, a.httpOn = hc, true
	}
	return a, nil
}

// Store is exposed for admin tooling and tests.
func (a *App) Store() storage.Store { return a.store }

// Checker exposes the tick runner.
func (a *App) Checker() *checker.Service { return a.checker }

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first error recorded by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) tick(ctx context.Context, fireTime time.Time) error {
	rep, err := a.checker.RunTick(ctx, fireTime)
	a.mets.ObserveTick(rep, err)
	return err
}

// HTTPAddr is the bound status-server address, or "" when it is not running.
func (a *App) HTTPAddr() string {
	if a.http == nil {
		return ""
	}
	return a.http.Addr()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.mets.WatchSupervisor("app", a.sup.Counters)
	a.mets.WatchSupervisor("background", a.bg.Counters)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		rt, err := config.Resolve(cfg)
		if err != nil {
			return err
		}
		if hc, ok := mapHTTPConfig(cfg, rt); ok {
			return hc.Check()
		}
		return nil
	})

	if a.httpOn {
		handler := httpapi.NewRouter(a.httpCfg, httpapi.Deps{
			Store:      a.store,
			LastTick:   a.checker.LastReport,
			Schedules:  a.sched.Snapshot,
			Deliveries: a.notif.History,
			Health: func() map[string]rtsup.Snapshot {
				return map[string]rtsup.Snapshot{"app": a.sup.Snapshot(), "background": a.bg.Snapshot()}
			},
			Metrics: a.mets,
		}, a.log)
		a.http = httpapi.NewServer(a.httpCfg, handler, a.log)
		a.sup.GoRestart("http.serve", a.http.Serve, 500*time.Millisecond, 10*time.Second)
	}

	tickCtx, stopTicks := context.WithCancel(context.WithoutCancel(ctx))
	a.stopTicks = stopTicks
	a.sched.Start(tickCtx)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("schedule", config.ScheduleOrDefault(a.cfgm.Get().Scheduler.Spec)),
		logx.Bool("http", a.httpOn),
	)
	return nil
}

// applyConfig pushes hot-reloadable sections into the running components.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	rt, err := config.Resolve(next)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	a.mu.Lock()
	a.rt = rt
	a.mu.Unlock()

	for _, s := range sections {
		switch s {
		case config.SectionLogging:
			a.logs.Apply(mapLogConfig(next))
		case config.SectionProbe:
			a.checker.SetProber(newProber(next, rt, a.log))
			a.checker.SetRegion(newRegion(next, rt, a.log))
			a.checker.SetBatchSize(next.Probe.BatchSize)
		case config.SectionNotify:
			a.notif.Apply(mapNotifierConfig(next, rt))
			if prev != nil && prev.Notify.TelegramAPIURL != next.Notify.TelegramAPIURL {
				a.log.Warn("notify.telegram_api_url changed; restart required for changes to take effect")
			}
		case config.SectionScheduler:
			a.sched.Apply(scheduler.Config{Timezone: next.Scheduler.Timezone})
			if err := a.sched.AddCron(TickSchedule, config.ScheduleOrDefault(next.Scheduler.Spec), 0, a.tick); err != nil {
				a.log.Warn("tick reschedule failed; keeping previous", logx.Err(err))
			}
		}
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.mu.Lock()
	drain := a.rt.ShutdownTimeout
	a.mu.Unlock()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	// No new ticks. An in-flight tick gets the drain budget, then its
	// remaining probes are canceled and left unrecorded.
	step("scheduler", drain, func(c context.Context) error {
		a.sched.Stop(c)
		a.stopTicks()
		return nil
	})

	// Let pending alerts and the daily job finish, then cut the rest off.
	step("background", drain, func(c context.Context) error {
		err := a.bg.Wait(c)
		a.bg.Cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%d task(s) still running at deadline", a.bg.Counters().Active)
		}
		// Task failures were already logged when they happened.
		return nil
	})

	step("supervisor", 5*time.Second, func(c context.Context) error {
		if err := a.sup.Stop(c); err != nil && errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
	step("storage", 0, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
