package app

import (
	"context"
	"fmt"

	"barzin/internal/scheduler"
	logx "barzin/pkg/logx"
)

// NewScheduler builds the notifier's scheduler from the configured tasks.
// Disabled tasks are skipped.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	opts, err := mapSchedulerOptions(a.cfg, a.opts.Interval)
	if err != nil {
		return nil, err
	}
	opts.Role = a.role
	opts.Log = a.log
	if a.store != nil {
		opts.Recorder = a.store
	}
	opts.Heartbeat = a.heartbeat

	s := scheduler.New(opts)
	for _, tc := range a.cfg.Scheduler.Tasks {
		if tc.Disabled {
			a.log.Info("task disabled", logx.String("task", tc.Name))
			continue
		}
		fn, err := a.taskAction(tc, s)
		if err != nil {
			return nil, err
		}
		t, err := scheduler.NewTask(tc.Name, tc.Schedule, a.loc, fn)
		if err != nil {
			return nil, err
		}
		t.Kind = tc.Kind
		if err := s.Register(t); err != nil {
			return nil, err
		}
	}
	if s.Len() == 0 {
		return nil, fmt.Errorf("no enabled tasks in scheduler.tasks")
	}
	return s, nil
}

// RunNotifier runs the scheduler until ctx is done. With Once set it runs
// every task a single time and returns. A loop-fatal error is reported to
// the channel before it is returned.
func (a *App) RunNotifier(ctx context.Context) error {
	s, err := a.NewScheduler()
	if err != nil {
		return err
	}
	if a.opts.Once {
		n := s.RunOnce(ctx)
		a.log.Info("run-once finished", logx.Int("tasks", n))
		return nil
	}
	err = a.runWithConfigWatch(ctx, s.Run)
	if err != nil {
		a.ReportFatal(ctx, err)
	}
	return err
}
