// Package logx configures the scheduler's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional alert sink fanout (min-level + rate limiting) to an
//     injected AlertSink, typically the notifier service
package logx
