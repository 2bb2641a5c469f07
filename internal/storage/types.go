package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one task execution or restart attempt.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	Task      string        `json:"task"`
	StartedAt time.Time     `json:"started_at"`
	Took      time.Duration `json:"took_ns"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
}
