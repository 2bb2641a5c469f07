package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"barzin/internal/storage"
	logx "barzin/pkg/logx"
)

const (
	DefaultTick        = 30 * time.Second
	MaxTick            = 60 * time.Second
	DefaultTaskTimeout = 2 * time.Minute
)

var (
	// ErrLoopFatal wraps a failure that escaped per-task isolation.
	ErrLoopFatal = errors.New("scheduler loop failed")
	// ErrDuplicateTask is returned by Register for a name already in use.
	ErrDuplicateTask = errors.New("duplicate task name")
)

// Recorder receives one record per task execution. storage.Store satisfies it.
type Recorder interface {
	AppendRun(ctx context.Context, r storage.RunRecord) error
}

type Options struct {
	// Role is stamped on run records.
	Role string
	// Tick is the loop interval. Default 30s; values above 60s are clamped.
	Tick time.Duration
	// RunOnStart runs every task once before the first tick.
	RunOnStart bool
	// TaskTimeout bounds one action. Default 2m.
	TaskTimeout time.Duration

	Recorder Recorder
	// Heartbeat runs after every tick (e.g. refreshing the instance lock).
	Heartbeat func(ctx context.Context)

	Now func() time.Time
	Log logx.Logger
}

type entry struct {
	task         Task
	registeredAt time.Time

	lastRun  time.Time
	lastTook time.Duration
	lastErr  string
	runs     int
	failures int
}

// due reports whether e should run at now. Callers hold s.mu.
func (e *entry) due(now time.Time) bool {
	if e.task.Cron != nil {
		ref := e.lastRun
		if ref.IsZero() {
			ref = e.registeredAt
		}
		return !now.Before(e.task.Cron.Next(ref))
	}
	if e.lastRun.IsZero() {
		return true
	}
	return now.Sub(e.lastRun) >= e.task.Interval
}

func (e *entry) nextDue() time.Time {
	if e.task.Cron != nil {
		ref := e.lastRun
		if ref.IsZero() {
			ref = e.registeredAt
		}
		return e.task.Cron.Next(ref)
	}
	if e.lastRun.IsZero() {
		return e.registeredAt
	}
	return e.lastRun.Add(e.task.Interval)
}

// Scheduler runs registered tasks from a single loop.
type Scheduler struct {
	opts Options
	log  logx.Logger

	mu    sync.Mutex
	tasks []*entry
	index map[string]*entry
}

func New(opts Options) *Scheduler {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Tick > MaxTick {
		opts.Log.Warn("scheduler tick clamped", logx.Duration("requested", opts.Tick), logx.Duration("tick", MaxTick))
		opts.Tick = MaxTick
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultTaskTimeout
	}
	return &Scheduler{
		opts:  opts,
		log:   opts.Log.With(logx.String("comp", "scheduler")),
		index: map[string]*entry{},
	}
}

// TickInterval returns the effective loop interval.
func (s *Scheduler) TickInterval() time.Duration { return s.opts.Tick }

// Register adds t after the already registered tasks.
func (s *Scheduler) Register(t Task) error {
	t.Name = strings.TrimSpace(t.Name)
	if err := t.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[t.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, t.Name)
	}
	e := &entry{task: t, registeredAt: s.opts.Now()}
	s.tasks = append(s.tasks, e)
	s.index[t.Name] = e
	s.log.Debug("task registered", logx.String("task", t.Name), logx.String("schedule", t.schedule()))
	return nil
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Tick runs every due task once, in registration order, and returns how
// many ran. Task failures never stop the tick.
func (s *Scheduler) Tick(ctx context.Context) int {
	return s.runWhere(ctx, func(e *entry, now time.Time) bool { return e.due(now) })
}

// RunOnce runs every task exactly once, in registration order, due or not.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	return s.runWhere(ctx, func(*entry, time.Time) bool { return true })
}

func (s *Scheduler) runWhere(ctx context.Context, pick func(*entry, time.Time) bool) int {
	s.mu.Lock()
	tasks := append([]*entry(nil), s.tasks...)
	s.mu.Unlock()

	ran := 0
	for _, e := range tasks {
		if ctx.Err() != nil {
			break
		}
		now := s.opts.Now()
		s.mu.Lock()
		ok := pick(e, now)
		if ok {
			e.lastRun = now
		}
		s.mu.Unlock()
		if !ok {
			continue
		}
		s.execute(ctx, e, now)
		ran++
	}
	return ran
}

func (s *Scheduler) execute(ctx context.Context, e *entry, startedAt time.Time) {
	t := e.task
	log := s.log.With(logx.String("task", t.Name))
	if t.Kind != "" {
		log = log.With(logx.String("kind", t.Kind))
	}

	err := s.invoke(ctx, t)
	took := s.opts.Now().Sub(startedAt)

	s.mu.Lock()
	e.runs++
	e.lastTook = took
	if err != nil {
		e.failures++
		e.lastErr = err.Error()
	} else {
		e.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		log.Error("task failed", logx.Err(err), logx.Duration("took", took))
	} else {
		log.Info("task done", logx.Duration("took", took))
	}
	s.record(ctx, t, startedAt, took, err)
}

// invoke runs the action under the task timeout and converts panics.
func (s *Scheduler) invoke(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("task panicked",
				logx.String("task", t.Name),
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 24)),
			)
		}
	}()
	tctx, cancel := context.WithTimeout(ctx, s.opts.TaskTimeout)
	defer cancel()
	return t.Action(tctx)
}

func (s *Scheduler) record(ctx context.Context, t Task, startedAt time.Time, took time.Duration, runErr error) {
	if s.opts.Recorder == nil {
		return
	}
	r := storage.RunRecord{
		Role:      s.opts.Role,
		Task:      t.Name,
		StartedAt: startedAt,
		Took:      took,
		OK:        runErr == nil,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.opts.Recorder.AppendRun(rctx, r); err != nil {
		s.log.Debug("run record dropped", logx.String("task", t.Name), logx.Err(err))
	}
}

// Run drives the loop until ctx is done (returns nil) or a failure escapes
// the per-task isolation (returns an error wrapping ErrLoopFatal).
func (s *Scheduler) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler loop panicked",
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 32)),
			)
			err = fmt.Errorf("%w: %v", ErrLoopFatal, r)
		}
	}()

	s.log.Info("scheduler started",
		logx.Int("tasks", s.Len()),
		logx.Duration("tick", s.opts.Tick),
		logx.Bool("run_on_start", s.opts.RunOnStart),
	)
	if s.opts.RunOnStart {
		s.RunOnce(ctx)
		s.heartbeat(ctx)
	}

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
			s.heartbeat(ctx)
		}
	}
}

func (s *Scheduler) heartbeat(ctx context.Context) {
	if s.opts.Heartbeat != nil && ctx.Err() == nil {
		s.opts.Heartbeat(ctx)
	}
}
