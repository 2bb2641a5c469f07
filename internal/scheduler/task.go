package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Action is one unit of recurring work.
type Action func(ctx context.Context) error

// Task is a named recurring action. Exactly one of Interval or Cron drives it.
type Task struct {
	Name string
	// Kind labels the task in logs and run records (e.g. "price_report").
	Kind     string
	Interval time.Duration
	Cron     cron.Schedule
	// Spec is the original schedule text, for display.
	Spec   string
	Action Action
}

// Every builds an interval task.
func Every(name string, interval time.Duration, fn Action) Task {
	return Task{Name: name, Interval: interval, Spec: interval.String(), Action: fn}
}

// NewTask parses spec (see ParseSchedule). Cron expressions are evaluated in
// loc; nil means time.Local.
func NewTask(name, spec string, loc *time.Location, fn Action) (Task, error) {
	ps, err := ParseSchedule(spec)
	if err != nil {
		return Task{}, fmt.Errorf("task %q: %w", name, err)
	}
	t := Task{Name: name, Spec: strings.TrimSpace(spec), Action: fn}
	if ps.Kind == SpecInterval {
		t.Interval = ps.Every
		return t, nil
	}
	sched, err := ParseCron(ps.Cron, loc)
	if err != nil {
		return Task{}, fmt.Errorf("task %q: %w", name, err)
	}
	t.Cron = sched
	return t, nil
}

// ParseCron parses a standard 5-field expression or descriptor in loc.
func ParseCron(expr string, loc *time.Location) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if loc != nil && !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
		expr = "CRON_TZ=" + loc.String() + " " + expr
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return sched, nil
}

func (t Task) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("task name required")
	}
	if t.Action == nil {
		return fmt.Errorf("task %q: action required", t.Name)
	}
	if t.Cron == nil && t.Interval <= 0 {
		return fmt.Errorf("task %q: interval must be > 0", t.Name)
	}
	return nil
}

// schedule returns a human-readable schedule.
func (t Task) schedule() string {
	if t.Spec != "" {
		return t.Spec
	}
	if t.Cron != nil {
		return "cron"
	}
	return t.Interval.String()
}
