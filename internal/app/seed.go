package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"liteping/internal/config"
	"liteping/internal/storage"
	logx "liteping/pkg/logx"
)

// applySeed upserts configured monitors and notifiers. Existing rows not
// named in the seed are left alone.
func applySeed(ctx context.Context, st storage.Store, seed *config.SeedConfig, now time.Time, log logx.Logger) error {
	if seed == nil {
		return nil
	}
	var errs []error
	created := now.Unix()

	for _, m := range seed.Monitors {
		mon := storage.Monitor{
			ID:        m.ID,
			Name:      m.Name,
			URL:       m.URL,
			Method:    m.Method,
			Interval:  m.Interval,
			Active:    m.IsActive(),
			Weight:    m.Weight,
			CreatedAt: created,
		}
		if mon.Name == "" {
			mon.Name = m.ID
		}
		if err := st.UpsertMonitor(ctx, mon); err != nil {
			errs = append(errs, fmt.Errorf("seed monitor %s: %w", m.ID, err))
		}
	}

	for _, n := range seed.Notifiers {
		ct := storage.ChannelType(n.Type)
		cfg, err := storage.DecodeChannelConfig(ct, n.Config)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed notifier %s: %w", n.ID, err))
			continue
		}
		if err := st.InsertNotifier(ctx, storage.Notifier{
			ID:        n.ID,
			Name:      n.Name,
			Type:      ct,
			Config:    cfg,
			Active:    n.IsActive(),
			CreatedAt: created,
		}); err != nil {
			errs = append(errs, fmt.Errorf("seed notifier %s: %w", n.ID, err))
		}
	}

	if seed.RetentionDays > 0 {
		if err := st.SetSetting(ctx, storage.SettingRetentionDays, strconv.Itoa(seed.RetentionDays)); err != nil {
			errs = append(errs, fmt.Errorf("seed retention_days: %w", err))
		}
	}

	log.Info("seed applied",
		logx.Int("monitors", len(seed.Monitors)),
		logx.Int("notifiers", len(seed.Notifiers)),
		logx.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}
