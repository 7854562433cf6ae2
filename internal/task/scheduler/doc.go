// Package scheduler owns the cron triggers that drive liteping.
//
// Each registered schedule runs its job with the minute-truncated fire
// time in the configured location. Overlapping runs of the same schedule
// are skipped rather than queued.
package scheduler
