// Package logx configures barzin's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output either human lines ("time - role - LEVEL - message") or JSON
//   - Optional Telegram sink (min-level + rate limiting)
package logx
