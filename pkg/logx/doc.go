// Package logx configures reminderbot's structured logging.
//
// It wraps zerolog in a small value type (logx.Logger) so that:
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON
//   - An optional Telegram sink forwards warnings to an operator chat (min-level + rate limiting)
package logx
