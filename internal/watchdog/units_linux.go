//go:build linux

package watchdog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Units talks to systemd over the system D-Bus. The connection is opened on
// first use and reopened after a failure.
type Units struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func NewUnits() *Units { return &Units{} }

func unitName(unit string) string {
	unit = strings.TrimSpace(unit)
	if !strings.Contains(unit, ".") {
		unit += ".service"
	}
	return unit
}

func (u *Units) connect(ctx context.Context) (*dbus.Conn, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil && u.conn.Connected() {
		return u.conn, nil
	}
	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	u.conn = conn
	return conn, nil
}

// ActiveState returns the unit's ActiveState ("active", "inactive",
// "failed"...). Unknown units report "not-found".
func (u *Units) ActiveState(ctx context.Context, unit string) (string, error) {
	conn, err := u.connect(ctx)
	if err != nil {
		return "", err
	}
	name := unitName(unit)
	units, err := conn.ListUnitsByNamesContext(ctx, []string{name})
	if err != nil {
		return "", fmt.Errorf("failed to get status for %s: %w", name, err)
	}
	for _, st := range units {
		if st.Name != name {
			continue
		}
		if st.LoadState == "not-found" {
			return "not-found", nil
		}
		return st.ActiveState, nil
	}
	return "not-found", nil
}

// StartUnit queues a start job and waits for its result.
func (u *Units) StartUnit(ctx context.Context, unit string) error {
	conn, err := u.connect(ctx)
	if err != nil {
		return err
	}
	name := unitName(unit)
	done := make(chan string, 1)
	if _, err := conn.StartUnitContext(ctx, name, "replace", done); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	select {
	case res := <-done:
		if res != "done" {
			return fmt.Errorf("failed to start %s: job %s", name, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Units) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		u.conn.Close()
		u.conn = nil
	}
	return nil
}
