// Package storage keeps the optional run history.
//
// Every scheduler task execution and every watchdog restart attempt can be
// appended as a RunRecord. The history is for operators only: nothing reads it
// back to decide what runs next.
//
// Drivers:
//   - "file":   <prefix>.runs.jsonl, append-only JSON Lines
//   - "sqlite": a single SQLite database file (modernc.org/sqlite, no cgo)
package storage
