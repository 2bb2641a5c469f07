package watchdog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecStarter spawns the role binary detached from the watchdog, with output
// appended to Log (or discarded).
type ExecStarter struct {
	Command []string
	Log     string
	Dir     string
}

func (s ExecStarter) Name() string { return "exec" }

func (s ExecStarter) Start(context.Context) error {
	if len(s.Command) == 0 || strings.TrimSpace(s.Command[0]) == "" {
		return errors.New("exec starter: empty command")
	}
	// The child must outlive this call, so it is not bound to ctx.
	cmd := exec.Command(s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.Stdin = nil
	detach(cmd)

	if s.Log != "" {
		if err := os.MkdirAll(filepath.Dir(s.Log), 0o755); err != nil {
			return fmt.Errorf("exec starter: %w", err)
		}
		f, err := os.OpenFile(s.Log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("exec starter: %w", err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec starter: %w", err)
	}
	// Reap the child when it exits; the watchdog never waits on it.
	go func() { _ = cmd.Wait() }()
	return nil
}

// AppStarter is the part of the web app client used by HTTPStarter.
type AppStarter interface {
	Start(ctx context.Context) error
}

// HTTPStarter asks the web application to start the role.
type HTTPStarter struct {
	App AppStarter
}

func (s HTTPStarter) Name() string { return "http" }

func (s HTTPStarter) Start(ctx context.Context) error { return s.App.Start(ctx) }

// UnitStarter is the part of the systemd client used by SystemdStarter.
type UnitStarter interface {
	StartUnit(ctx context.Context, unit string) error
}

// SystemdStarter starts the role's unit.
type SystemdStarter struct {
	Units UnitStarter
	Unit  string
}

func (s SystemdStarter) Name() string { return "systemd" }

func (s SystemdStarter) Start(ctx context.Context) error { return s.Units.StartUnit(ctx, s.Unit) }
