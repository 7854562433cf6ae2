// Package storage is the persistence boundary of the probing engine.
//
// It covers the tables the engine reads or appends to:
//   - monitors, maintenance windows, notifiers and settings (read-mostly)
//   - heartbeats and hourly stats (append-only, purged by retention)
//   - incidents (insert + resolve)
//
// Drivers: "sqlite" (modernc.org/sqlite, embedded migrations) and "memory".
package storage
