package notifier

import (
	"context"
	"time"

	"barzin/internal/report"
)

// Channel is the external delivery surface (Telegram in production).
type Channel interface {
	SendHTML(ctx context.Context, target, text string) (messageID int, err error)
}

type Config struct {
	// Timeout bounds one delivery. Default 10s.
	Timeout time.Duration
	// RatePerSec caps deliveries; excess sends fail fast. Default 3.
	RatePerSec int
	// HistorySize is the number of recent deliveries kept. Default 50.
	HistorySize int
	// DefaultTarget is used by Notify.
	DefaultTarget string
}

// Message is one outbound notification. Body is already rendered.
type Message struct {
	Category report.Category
	Body     string
	Target   string
}

type DeliveryResult struct {
	Success   bool
	Detail    string
	MessageID int
	Took      time.Duration
}

type HistoryItem struct {
	At       time.Time
	Category report.Category
	Target   string
	Success  bool
	Detail   string
}
