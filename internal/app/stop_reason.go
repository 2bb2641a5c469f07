package app

// StopReason says why a role process is exiting. cmd/* map it to the exit
// status.
type StopReason string

const (
	StopSignal   StopReason = "signal"
	StopOnce     StopReason = "once"
	StopLocked   StopReason = "locked"
	StopStartup  StopReason = "startup_error"
	StopFatal    StopReason = "fatal_error"
	StopEventErr StopReason = "event_failed"
)

// ExitCode is 0 for graceful stops and lock contention, 1 otherwise.
func (r StopReason) ExitCode() int {
	switch r {
	case StopSignal, StopOnce, StopLocked:
		return 0
	default:
		return 1
	}
}
