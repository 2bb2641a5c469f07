package scheduler

import "time"

// TaskInfo is a point-in-time view of one task.
type TaskInfo struct {
	Name     string
	Kind     string
	Schedule string
	LastRun  time.Time
	NextDue  time.Time
	LastTook time.Duration
	Runs     int
	Failures int
	LastErr  string
}

// Snapshot lists tasks in registration order.
func (s *Scheduler) Snapshot() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, e := range s.tasks {
		out = append(out, TaskInfo{
			Name:     e.task.Name,
			Kind:     e.task.Kind,
			Schedule: e.task.schedule(),
			LastRun:  e.lastRun,
			NextDue:  e.nextDue(),
			LastTook: e.lastTook,
			Runs:     e.runs,
			Failures: e.failures,
			LastErr:  e.lastErr,
		})
	}
	return out
}
