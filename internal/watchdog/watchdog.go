package watchdog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"barzin/internal/report"
	"barzin/internal/storage"
	logx "barzin/pkg/logx"
)

var (
	ErrUnknownRole = errors.New("unknown role")
	ErrNoStarter   = errors.New("role has no starter")
)

// Watchdog checks monitored roles and restarts the ones that stopped.
type Watchdog struct {
	opts Options
	log  logx.Logger

	mu    sync.Mutex
	roles []Role
	index map[string]int
}

func New(opts Options, roles ...Role) (*Watchdog, error) {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	if opts.Renderer == nil {
		opts.Renderer = report.NewRenderer(opts.Now, nil)
	}
	w := &Watchdog{
		opts:  opts,
		log:   opts.Log.With(logx.String("comp", "watchdog")),
		index: map[string]int{},
	}
	for _, r := range roles {
		if err := w.add(r); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *Watchdog) add(r Role) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return errors.New("role name required")
	}
	if len(r.Probes) == 0 {
		return fmt.Errorf("role %q: at least one probe required", r.Name)
	}
	if _, ok := w.index[r.Name]; ok {
		return fmt.Errorf("duplicate role %q", r.Name)
	}
	w.index[r.Name] = len(w.roles)
	w.roles = append(w.roles, r)
	return nil
}

// Roles returns the monitored role names in configuration order.
func (w *Watchdog) Roles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.roles))
	for i, r := range w.roles {
		out[i] = r.Name
	}
	return out
}

func (w *Watchdog) role(name string) (Role, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index[name]
	if !ok {
		return Role{}, false
	}
	return w.roles[i], true
}

// Check runs every probe of role. The role is running only if all probes
// report alive; a probe error counts as not running.
func (w *Watchdog) Check(ctx context.Context, role string) HealthResult {
	r, ok := w.role(role)
	if !ok {
		return HealthResult{Status: ErrUnknownRole.Error() + ": " + role, CheckedAt: w.opts.Now()}
	}
	return w.check(ctx, r)
}

func (w *Watchdog) check(ctx context.Context, r Role) HealthResult {
	res := HealthResult{Running: true}
	var parts []string
	for _, p := range r.Probes {
		alive, detail, err := safeProbe(ctx, p)
		switch {
		case err != nil:
			res.Running = false
			parts = append(parts, p.Name()+": "+err.Error())
		case !alive:
			res.Running = false
			parts = append(parts, p.Name()+": down"+suffix(detail))
		default:
			parts = append(parts, p.Name()+": ok"+suffix(detail))
		}
	}
	res.Status = strings.Join(parts, "; ")
	res.CheckedAt = w.opts.Now()
	return res
}

func suffix(detail string) string {
	if detail == "" {
		return ""
	}
	return " (" + detail + ")"
}

func safeProbe(ctx context.Context, p Probe) (alive bool, detail string, err error) {
	defer func() {
		if r := recover(); r != nil {
			alive, detail, err = false, "", fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Probe(ctx)
}

func safeStart(ctx context.Context, s Starter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Start(ctx)
}

// EnsureRunning starts role when it is not running, waits the grace period
// and checks again. The returned result is the final check.
func (w *Watchdog) EnsureRunning(ctx context.Context, role string) HealthResult {
	r, ok := w.role(role)
	if !ok {
		w.log.Warn("unknown role", logx.String("target_role", role))
		return HealthResult{Status: ErrUnknownRole.Error() + ": " + role, CheckedAt: w.opts.Now()}
	}
	log := w.log.With(logx.String("target_role", r.Name))

	res := w.check(ctx, r)
	if res.Running {
		log.Debug("role running", logx.String("status", res.Status))
		return res
	}
	log.Warn("role not running; starting", logx.String("status", res.Status))

	startedAt := w.opts.Now()
	var startErr error
	if r.Starter == nil {
		startErr = ErrNoStarter
	} else {
		startErr = safeStart(ctx, r.Starter)
	}
	if startErr != nil {
		log.Error("role start failed", logx.Err(startErr))
		w.record(ctx, r.Name, startedAt, startErr)
		return res
	}

	if err := w.opts.Sleep(ctx, w.opts.Grace); err != nil {
		w.record(ctx, r.Name, startedAt, err)
		return res
	}

	res = w.check(ctx, r)
	if !res.Running {
		err := fmt.Errorf("still not running after %s: %s", w.opts.Grace, res.Status)
		log.Error("role restart failed", logx.String("starter", r.Starter.Name()), logx.String("status", res.Status))
		w.record(ctx, r.Name, startedAt, err)
		return res
	}

	log.Info("role restarted", logx.String("starter", r.Starter.Name()), logx.String("status", res.Status))
	w.record(ctx, r.Name, startedAt, nil)
	if w.opts.NotifyRestart && w.opts.Notifier != nil {
		body := w.opts.Renderer.Render(report.Restart, report.RestartBody(r.Name, res.Status))
		if d := w.opts.Notifier.Notify(ctx, report.Restart, body); !d.Success {
			log.Warn("restart notice not delivered", logx.String("detail", d.Detail))
		}
	}
	return res
}

func (w *Watchdog) record(ctx context.Context, role string, startedAt time.Time, runErr error) {
	if w.opts.Recorder == nil {
		return
	}
	r := storage.RunRecord{
		Role:      w.opts.Self,
		Task:      "restart:" + role,
		StartedAt: startedAt,
		Took:      w.opts.Now().Sub(startedAt),
		OK:        runErr == nil,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.opts.Recorder.AppendRun(rctx, r); err != nil {
		w.log.Debug("run record dropped", logx.String("target_role", role), logx.Err(err))
	}
}

// Tick ensures every role in turn, each bounded by the check timeout.
// It returns the number of roles found running after the pass.
func (w *Watchdog) Tick(ctx context.Context) int {
	running := 0
	for _, name := range w.Roles() {
		if ctx.Err() != nil {
			break
		}
		rctx, cancel := context.WithTimeout(ctx, w.opts.CheckTimeout)
		res := w.EnsureRunning(rctx, name)
		cancel()
		if res.Running {
			running++
		}
	}
	return running
}

// Run checks all roles immediately and then every interval until ctx is
// done. It always returns nil on cancellation.
func (w *Watchdog) Run(ctx context.Context) error {
	w.notify("ready", w.daemonReady)
	defer w.notify("stopping", w.daemonStopping)

	w.log.Info("watchdog started",
		logx.Int("roles", len(w.Roles())),
		logx.Duration("interval", w.opts.Interval),
	)
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		w.pass(ctx)
		select {
		case <-ctx.Done():
			w.log.Info("watchdog stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watchdog) pass(ctx context.Context) {
	start := w.opts.Now()
	running := w.Tick(ctx)
	w.notify("watchdog", w.daemonAlive)
	if w.opts.Heartbeat != nil && ctx.Err() == nil {
		w.opts.Heartbeat(ctx)
	}
	w.log.Info("watchdog heartbeat",
		logx.Int("running", running),
		logx.Int("roles", len(w.Roles())),
		logx.Duration("took", w.opts.Now().Sub(start)),
	)
}

func (w *Watchdog) daemonReady() error {
	if w.opts.Daemon == nil {
		return nil
	}
	return w.opts.Daemon.Ready()
}

func (w *Watchdog) daemonAlive() error {
	if w.opts.Daemon == nil {
		return nil
	}
	return w.opts.Daemon.Alive()
}

func (w *Watchdog) daemonStopping() error {
	if w.opts.Daemon == nil {
		return nil
	}
	return w.opts.Daemon.Stopping()
}

func (w *Watchdog) notify(state string, fn func() error) {
	if err := fn(); err != nil {
		w.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
