package watchdog

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// SystemdNotifier reports state over the systemd notify socket. Outside a
// systemd service (NOTIFY_SOCKET unset) every call is a no-op.
type SystemdNotifier struct{}

func (SystemdNotifier) Ready() error    { return sdNotify(daemon.SdNotifyReady) }
func (SystemdNotifier) Alive() error    { return sdNotify(daemon.SdNotifyWatchdog) }
func (SystemdNotifier) Stopping() error { return sdNotify(daemon.SdNotifyStopping) }

func sdNotify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}
