// Package notifier provides a lightweight ops-alert service.
//
// Alerts are small, high-signal messages intended for operators (for
// example: a task entered error status, the license gate rejected a call,
// the dispatcher's execution lock refused an overlapping run). An alert
// carries a channel tag, a priority, and text.
//
// # Transport
//
// The service delegates delivery to a Sender implementation. The only
// built-in sender pushes text to a single Telegram chat via a bot token
// (gopkg.in/telebot.v4), purely send-side: there is no command surface and
// no inbound update handling, unlike a full bot front-end.
//
// The service also implements logx.AlertSink so it can double as the
// destination for fanned-out warn/error log lines.
//
// # History
//
// For debugging and operator visibility, the service keeps a small
// in-memory history of recently emitted alerts.
package notifier
