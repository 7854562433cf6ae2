// Package notifier fans incident alerts out to every active channel.
//
// An Alert is rendered per channel type (Discord embed, Telegram Markdown
// message, Slack attachment, or the raw alert JSON for generic webhooks) and
// delivered in parallel. Deliveries are independent: a failing channel is
// logged and counted in the Report, never retried, and never surfaced as an
// error to the caller.
//
// # Throttling
//
// All outbound sends share one token bucket and a per-send timeout so a
// burst of incidents does not hammer upstream webhooks.
//
// # History
//
// The dispatcher keeps a small in-memory history of delivered alerts for the
// status endpoint.
package notifier
