package watchdog

import (
	"context"
	"time"

	"barzin/internal/notifier"
	"barzin/internal/report"
	"barzin/internal/storage"
	logx "barzin/pkg/logx"
)

// HealthResult is computed fresh on every check and never cached.
type HealthResult struct {
	Running   bool
	Status    string
	CheckedAt time.Time
}

// Probe reports whether one aspect of a role looks alive.
type Probe interface {
	Name() string
	Probe(ctx context.Context) (alive bool, detail string, err error)
}

// Starter launches a role that is not running.
type Starter interface {
	Name() string
	Start(ctx context.Context) error
}

// Role is one monitored process. A role is running only if every probe agrees.
type Role struct {
	Name    string
	Probes  []Probe
	Starter Starter
}

// Notifier delivers the optional restart notice. *notifier.Dispatcher
// satisfies it.
type Notifier interface {
	Notify(ctx context.Context, c report.Category, body string) notifier.DeliveryResult
}

// Recorder receives one record per restart attempt. storage.Store satisfies it.
type Recorder interface {
	AppendRun(ctx context.Context, r storage.RunRecord) error
}

// Daemon reports the watchdog's own state to the service manager.
type Daemon interface {
	Ready() error
	Alive() error
	Stopping() error
}

const (
	DefaultInterval     = 5 * time.Minute
	DefaultGrace        = 3 * time.Second
	DefaultCheckTimeout = 30 * time.Second
)

type Options struct {
	// Self is the watchdog's own role name, stamped on run records.
	Self string

	Interval     time.Duration
	Grace        time.Duration
	CheckTimeout time.Duration

	// NotifyRestart sends a restart message after a successful restart.
	NotifyRestart bool
	Notifier      Notifier
	Renderer      *report.Renderer

	Recorder Recorder
	Daemon   Daemon
	// Heartbeat runs after every pass (e.g. refreshing the instance lock).
	Heartbeat func(ctx context.Context)

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Log   logx.Logger
}
