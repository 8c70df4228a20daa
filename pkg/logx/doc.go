// Package logx configures dynpoll's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Noisy call sites cheap to silence (Throttled, backed by x/time/rate)
package logx
