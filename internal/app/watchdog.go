package app

import (
	"context"
	"fmt"

	"barzin/internal/config"
	"barzin/internal/watchdog"
	logx "barzin/pkg/logx"
)

// NewWatchdog builds the supervisor for the configured roles. The returned
// closer releases the systemd connection, if one was needed.
func (a *App) NewWatchdog() (*watchdog.Watchdog, func() error, error) {
	timing, err := mapWatchdogTiming(a.cfg, a.opts.Interval)
	if err != nil {
		return nil, nil, err
	}

	var units *watchdog.Units
	getUnits := func() *watchdog.Units {
		if units == nil {
			units = watchdog.NewUnits()
		}
		return units
	}
	closer := func() error {
		if units != nil {
			return units.Close()
		}
		return nil
	}

	roles := make([]watchdog.Role, 0, len(a.cfg.Watchdog.Roles))
	for _, rc := range a.cfg.Watchdog.Roles {
		r, err := a.watchdogRole(rc, getUnits)
		if err != nil {
			_ = closer()
			return nil, nil, err
		}
		roles = append(roles, r)
	}

	opts := watchdog.Options{
		Self:          a.role,
		Interval:      timing.interval,
		Grace:         timing.grace,
		CheckTimeout:  timing.checkTimeout,
		NotifyRestart: a.cfg.Watchdog.NotifyRestart,
		Notifier:      a.notif,
		Renderer:      a.render,
		Daemon:        watchdog.SystemdNotifier{},
		Heartbeat:     a.heartbeat,
		Log:           a.log,
	}
	if a.store != nil {
		opts.Recorder = a.store
	}
	w, err := watchdog.New(opts, roles...)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return w, closer, nil
}

func (a *App) watchdogRole(rc config.MonitoredRole, units func() *watchdog.Units) (watchdog.Role, error) {
	r := watchdog.Role{Name: rc.Name}
	for i, pc := range rc.Probes {
		switch pc.Kind {
		case "lock":
			r.Probes = append(r.Probes, watchdog.LockProbe{Guard: a.guard, Role: rc.Name})
		case "http":
			r.Probes = append(r.Probes, watchdog.HTTPProbe{App: a.web, Path: pc.Path, Expr: pc.Expr})
		case "channel":
			r.Probes = append(r.Probes, watchdog.ChannelProbe{Notifier: a.notif, Renderer: a.render, Role: rc.Name})
		case "systemd":
			r.Probes = append(r.Probes, watchdog.SystemdProbe{Units: units(), Unit: pc.Unit})
		default:
			return r, fmt.Errorf("watchdog.roles[%s].probes[%d]: unknown kind %q", rc.Name, i, pc.Kind)
		}
	}

	switch sc := rc.Start; sc.Kind {
	case "exec":
		r.Starter = watchdog.ExecStarter{Command: sc.Command, Log: sc.Log}
	case "http":
		r.Starter = watchdog.HTTPStarter{App: a.web}
	case "systemd":
		r.Starter = watchdog.SystemdStarter{Units: units(), Unit: sc.Unit}
	default:
		return r, fmt.Errorf("watchdog.roles[%s].start: unknown kind %q", rc.Name, sc.Kind)
	}
	return r, nil
}

// RunWatchdog supervises the configured roles until ctx is done. With Once
// set it makes a single pass and returns.
func (a *App) RunWatchdog(ctx context.Context) error {
	w, closeUnits, err := a.NewWatchdog()
	if err != nil {
		return err
	}
	defer func() { _ = closeUnits() }()

	if a.opts.Once {
		n := w.Tick(ctx)
		a.log.Info("watchdog pass finished", logx.Int("running", n), logx.Int("roles", len(w.Roles())))
		return nil
	}
	return a.runWithConfigWatch(ctx, w.Run)
}
