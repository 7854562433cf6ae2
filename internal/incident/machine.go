package incident

import (
	"context"
	"fmt"

	"liteping/internal/notifier"
	"liteping/internal/probe"
	"liteping/internal/storage"
	logx "liteping/pkg/logx"

	"github.com/google/uuid"
)

// Store is the slice of storage the machine writes to.
type Store interface {
	InsertIncident(ctx context.Context, inc storage.Incident) error
	ResolveIncident(ctx context.Context, id string, resolvedAt int64) error
}

// Dispatcher delivers alerts. notifier.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, a notifier.Alert) notifier.Report
	Language() string
}

// Spawner runs a named task off the caller's path. The runtime supervisor
// implements it.
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Outcome of evaluating one probe result.
type Outcome struct {
	Action   Action
	Incident storage.Incident
	// Downtime in minutes, set on resolve.
	Downtime int64
}

type Machine struct {
	store    Store
	dispatch Dispatcher
	spawn    Spawner
	log      logx.Logger
	newID    func() string
}

func NewMachine(store Store, dispatch Dispatcher, spawn Spawner, log logx.Logger) *Machine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Machine{
		store:    store,
		dispatch: dispatch,
		spawn:    spawn,
		log:      log.With(logx.String("comp", "incident")),
		newID:    uuid.NewString,
	}
}

// Cause is the stored reason for an incident.
func Cause(res probe.Result) string {
	if res.Status == 0 {
		if res.Err == "" {
			return "Network Error"
		}
		return res.Err
	}
	return fmt.Sprintf("HTTP Status %d", res.Status)
}

// Evaluate applies one probe result against the pre-tick snapshot. Writes
// happen inline; alerts are handed to the spawner and never awaited. A
// failed write is returned and suppresses its alert.
func (m *Machine) Evaluate(ctx context.Context, snap *Snapshot, mon storage.Monitor, res probe.Result, now int64) (Outcome, error) {
	open, hasOpen := snap.OpenIncident(mon.ID)
	act := Decide(res.Down(), hasOpen, snap.UnderMaintenance(mon.ID))
	out := Outcome{Action: act}

	switch act {
	case ActionOpen:
		inc := storage.Incident{
			ID:        m.newID(),
			MonitorID: mon.ID,
			URL:       mon.URL,
			Cause:     Cause(res),
			StartedAt: now,
		}
		if err := m.store.InsertIncident(ctx, inc); err != nil {
			m.log.Error("open incident failed", logx.String("monitor", mon.ID), logx.Err(err))
			return out, fmt.Errorf("open incident for %s: %w", mon.ID, err)
		}
		out.Incident = inc
		m.log.Info("incident opened",
			logx.String("monitor", mon.ID),
			logx.String("incident", inc.ID),
			logx.String("cause", inc.Cause),
		)
		m.notify("notify.down."+mon.ID, func(lang string) notifier.Alert {
			return notifier.DownAlert(lang, mon.Name, mon.URL, res.Status, res.Err)
		})

	case ActionResolve:
		if err := m.store.ResolveIncident(ctx, open.ID, now); err != nil {
			m.log.Error("resolve incident failed", logx.String("monitor", mon.ID), logx.String("incident", open.ID), logx.Err(err))
			return out, fmt.Errorf("resolve incident %s: %w", open.ID, err)
		}
		resolved := now
		open.ResolvedAt = &resolved
		out.Incident = open
		out.Downtime = DowntimeMinutes(open.StartedAt, now)
		m.log.Info("incident resolved",
			logx.String("monitor", mon.ID),
			logx.String("incident", open.ID),
			logx.Int64("downtime_min", out.Downtime),
		)
		mins := out.Downtime
		m.notify("notify.up."+mon.ID, func(lang string) notifier.Alert {
			return notifier.UpAlert(lang, mon.Name, mon.URL, mins)
		})

	case ActionSuppress:
		m.log.Debug("down under maintenance; suppressed", logx.String("monitor", mon.ID))
	}
	return out, nil
}

func (m *Machine) notify(name string, build func(lang string) notifier.Alert) {
	if m.dispatch == nil || m.spawn == nil {
		return
	}
	d := m.dispatch
	m.spawn.Go(name, func(ctx context.Context) error {
		rep := d.Dispatch(ctx, build(d.Language()))
		m.log.Debug("alert dispatched",
			logx.String("task", name),
			logx.Int("delivered", rep.Delivered),
			logx.Int("failed", rep.Failed),
		)
		return nil
	})
}
