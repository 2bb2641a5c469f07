package watchdog

import (
	"context"
	"errors"
	"fmt"

	"barzin/internal/report"
)

// LockChecker is the part of the instance guard used by LockProbe.
type LockChecker interface {
	IsRunning(role string) bool
}

// LockProbe treats a role as alive when its lock file names a live process.
type LockProbe struct {
	Guard LockChecker
	Role  string
}

func (p LockProbe) Name() string { return "lock" }

func (p LockProbe) Probe(context.Context) (bool, string, error) {
	if p.Guard.IsRunning(p.Role) {
		return true, "lock held by a live process", nil
	}
	return false, "no live lock holder", nil
}

// StatusSource is the part of the web app client used by HTTPProbe.
type StatusSource interface {
	Running(ctx context.Context, path, expr string) (bool, string, error)
}

// HTTPProbe asks the web application whether the role is running. Empty Path
// and Expr use the client's defaults.
type HTTPProbe struct {
	App  StatusSource
	Path string
	Expr string
}

func (p HTTPProbe) Name() string { return "http" }

func (p HTTPProbe) Probe(ctx context.Context) (bool, string, error) {
	ok, detail, err := p.App.Running(ctx, p.Path, p.Expr)
	if err != nil {
		return false, "", err
	}
	return ok, detail, nil
}

// ChannelProbe sends a test notification; a delivered message means the
// channel path is alive.
type ChannelProbe struct {
	Notifier Notifier
	Renderer *report.Renderer
	Role     string
}

func (p ChannelProbe) Name() string { return "channel" }

func (p ChannelProbe) Probe(ctx context.Context) (bool, string, error) {
	if p.Notifier == nil {
		return false, "", errors.New("no notifier")
	}
	r := p.Renderer
	if r == nil {
		r = report.NewRenderer(nil, nil)
	}
	body := report.Text(fmt.Sprintf("Health check for %s.", p.Role))
	res := p.Notifier.Notify(ctx, report.Test, r.Render(report.Test, body))
	if !res.Success {
		return false, res.Detail, nil
	}
	return true, "test message delivered", nil
}

// UnitState is the part of the systemd client used by SystemdProbe.
type UnitState interface {
	ActiveState(ctx context.Context, unit string) (string, error)
}

// SystemdProbe treats a role as alive when its unit is active.
type SystemdProbe struct {
	Units UnitState
	Unit  string
}

func (p SystemdProbe) Name() string { return "systemd" }

func (p SystemdProbe) Probe(ctx context.Context) (bool, string, error) {
	state, err := p.Units.ActiveState(ctx, p.Unit)
	if err != nil {
		return false, "", err
	}
	return state == "active", p.Unit + " is " + state, nil
}
