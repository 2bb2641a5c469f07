package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"barzin/internal/config"
	"barzin/internal/report"
	"barzin/internal/scheduler"
	logx "barzin/pkg/logx"
)

// recentRunsInStatus is how many history records the status report scans.
const recentRunsInStatus = 50

// taskAction builds the action for one configured task. sched is needed by
// the status kinds to read the task snapshot.
func (a *App) taskAction(tc config.TaskConfig, sched *scheduler.Scheduler) (scheduler.Action, error) {
	switch strings.TrimSpace(tc.Kind) {
	case "price_report":
		return a.priceReport, nil
	case "system_status":
		return func(ctx context.Context) error { return a.systemStatus(ctx, sched) }, nil
	case "test":
		return a.testMessage, nil
	case "keep_alive":
		paths := tc.Paths
		if len(paths) == 0 {
			paths = []string{"/"}
		}
		return func(ctx context.Context) error { return a.keepAlive(ctx, paths) }, nil
	case "webapp_trigger":
		path := tc.Path
		return func(ctx context.Context) error { return a.webappTrigger(ctx, path) }, nil
	case "log_status":
		return func(context.Context) error { a.logStatus(sched); return nil }, nil
	default:
		return nil, fmt.Errorf("task %q: unknown kind %q", tc.Name, tc.Kind)
	}
}

func (a *App) priceReport(ctx context.Context) error {
	snap, err := a.market.Prices(ctx)
	if err != nil {
		return fmt.Errorf("market: %w", err)
	}
	body := report.PriceTable(snap.ReportQuotes(), snap.Simulated)
	return a.deliver(ctx, report.PriceReport, a.render.Render(report.PriceReport, body))
}

func (a *App) systemStatus(ctx context.Context, sched *scheduler.Scheduler) error {
	st := report.HostStatus(a.role, a.uptime())
	for _, ti := range sched.Snapshot() {
		st.Tasks = append(st.Tasks, report.TaskStatus{
			Name:     ti.Name,
			Runs:     ti.Runs,
			Failures: ti.Failures,
			LastRun:  ti.LastRun,
			LastErr:  ti.LastErr,
		})
	}
	st.Note = a.historyNote(ctx)
	return a.deliver(ctx, report.SystemStatus, a.render.Render(report.SystemStatus, report.StatusBody(st)))
}

// historyNote summarizes recent run history, or "" when storage is off.
func (a *App) historyNote(ctx context.Context) string {
	if a.store == nil {
		return ""
	}
	runs, err := a.store.RecentRuns(ctx, recentRunsInStatus)
	if err != nil {
		a.log.Debug("run history unavailable", logx.Err(err))
		return ""
	}
	failed := 0
	for _, r := range runs {
		if !r.OK {
			failed++
		}
	}
	return fmt.Sprintf("Last %d runs: %d failed.", len(runs), failed)
}

func (a *App) testMessage(ctx context.Context) error {
	body := report.Text("Scheduled test message. The notifier is running.")
	return a.deliver(ctx, report.Test, a.render.Render(report.Test, body))
}

func (a *App) keepAlive(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := a.web.Ping(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("ping %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) webappTrigger(ctx context.Context, path string) error {
	resp, err := a.web.Call(ctx, path)
	if err != nil {
		return err
	}
	a.log.Debug("webapp triggered", logx.String("path", path), logx.String("message", resp.Message()))
	return nil
}

func (a *App) logStatus(sched *scheduler.Scheduler) {
	failures := 0
	snap := sched.Snapshot()
	for _, ti := range snap {
		failures += ti.Failures
	}
	a.log.Info("status",
		logx.Int("tasks", len(snap)),
		logx.Int("failures", failures),
		logx.Duration("uptime", a.uptime()),
	)
}
