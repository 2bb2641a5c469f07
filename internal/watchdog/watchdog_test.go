package watchdog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"barzin/internal/guard"
	"barzin/internal/notifier"
	"barzin/internal/report"
	"barzin/internal/storage"
	"barzin/internal/webapp"
	logx "barzin/pkg/logx"
)

// seqProbe returns results[i] on the i-th call and repeats the last one.
type seqProbe struct {
	mu      sync.Mutex
	results []bool
	err     error
	calls   int
}

func (p *seqProbe) Name() string { return "fake" }

func (p *seqProbe) Probe(ctx context.Context) (bool, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if p.err != nil {
		return false, "", p.err
	}
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	return p.results[i], "", nil
}

type panicProbe struct{}

func (panicProbe) Name() string { return "panics" }
func (panicProbe) Probe(context.Context) (bool, string, error) {
	panic("probe bug")
}

type blockProbe struct{}

func (blockProbe) Name() string { return "blocks" }
func (blockProbe) Probe(ctx context.Context) (bool, string, error) {
	<-ctx.Done()
	return false, "", ctx.Err()
}

type fakeStarter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *fakeStarter) Name() string { return "fake" }
func (s *fakeStarter) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *fakeStarter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []report.Category
	bodies []string
	fail   bool
}

func (n *fakeNotifier) Notify(_ context.Context, c report.Category, body string) notifier.DeliveryResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, c)
	n.bodies = append(n.bodies, body)
	if n.fail {
		return notifier.DeliveryResult{Detail: "chat not found"}
	}
	return notifier.DeliveryResult{Success: true, Detail: "ok"}
}

type memRecorder struct {
	mu sync.Mutex
	rs []storage.RunRecord
}

func (m *memRecorder) AppendRun(_ context.Context, r storage.RunRecord) error {
	m.mu.Lock()
	m.rs = append(m.rs, r)
	m.mu.Unlock()
	return nil
}

type fakeDaemon struct {
	mu     sync.Mutex
	states []string
}

func (d *fakeDaemon) add(s string) error {
	d.mu.Lock()
	d.states = append(d.states, s)
	d.mu.Unlock()
	return nil
}
func (d *fakeDaemon) Ready() error    { return d.add("READY") }
func (d *fakeDaemon) Alive() error    { return d.add("WATCHDOG") }
func (d *fakeDaemon) Stopping() error { return d.add("STOPPING") }

func noSleep(context.Context, time.Duration) error { return nil }

func TestCheckRequiresEveryProbe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		probes []Probe
		want   bool
	}{
		{"all alive", []Probe{&seqProbe{results: []bool{true}}, &seqProbe{results: []bool{true}}}, true},
		{"one down", []Probe{&seqProbe{results: []bool{true}}, &seqProbe{results: []bool{false}}}, false},
		{"probe error", []Probe{&seqProbe{err: errors.New("connection refused")}}, false},
		{"probe panic", []Probe{panicProbe{}}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, err := New(Options{}, Role{Name: "notifier", Probes: tt.probes})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			res := w.Check(context.Background(), "notifier")
			if res.Running != tt.want {
				t.Fatalf("Running = %v, want %v (status %q)", res.Running, tt.want, res.Status)
			}
			if res.CheckedAt.IsZero() {
				t.Fatal("CheckedAt not set")
			}
		})
	}
}

func TestNewRejectsBadRoles(t *testing.T) {
	t.Parallel()
	p := &seqProbe{results: []bool{true}}
	if _, err := New(Options{}, Role{Name: "", Probes: []Probe{p}}); err == nil {
		t.Fatal("expected error for empty name")
	}
	if _, err := New(Options{}, Role{Name: "a"}); err == nil {
		t.Fatal("expected error for role without probes")
	}
	if _, err := New(Options{}, Role{Name: "a", Probes: []Probe{p}}, Role{Name: "a", Probes: []Probe{p}}); err == nil {
		t.Fatal("expected error for duplicate role")
	}
}

func TestEnsureRunningLeavesHealthyRoleAlone(t *testing.T) {
	t.Parallel()
	st := &fakeStarter{}
	w, _ := New(Options{Sleep: noSleep}, Role{Name: "notifier", Probes: []Probe{&seqProbe{results: []bool{true}}}, Starter: st})
	if res := w.EnsureRunning(context.Background(), "notifier"); !res.Running {
		t.Fatalf("Running = false, status %q", res.Status)
	}
	if st.count() != 0 {
		t.Fatalf("starter called %d times, want 0", st.count())
	}
}

func TestEnsureRunningRestarts(t *testing.T) {
	t.Parallel()
	st := &fakeStarter{}
	nt := &fakeNotifier{}
	rec := &memRecorder{}
	var slept time.Duration
	w, _ := New(Options{
		Self:          "watchdog",
		Grace:         3 * time.Second,
		NotifyRestart: true,
		Notifier:      nt,
		Recorder:      rec,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = d
			return nil
		},
	}, Role{Name: "notifier", Probes: []Probe{&seqProbe{results: []bool{false, true}}}, Starter: st})

	res := w.EnsureRunning(context.Background(), "notifier")
	if !res.Running {
		t.Fatalf("Running = false after restart, status %q", res.Status)
	}
	if st.count() != 1 {
		t.Fatalf("starter called %d times, want 1", st.count())
	}
	if slept != 3*time.Second {
		t.Fatalf("grace = %v, want 3s", slept)
	}
	if len(nt.sent) != 1 || nt.sent[0] != report.Restart {
		t.Fatalf("notifications = %v, want [restart]", nt.sent)
	}
	if !strings.Contains(nt.bodies[0], "notifier") {
		t.Fatalf("restart body missing role: %q", nt.bodies[0])
	}
	if len(rec.rs) != 1 || !rec.rs[0].OK || rec.rs[0].Task != "restart:notifier" || rec.rs[0].Role != "watchdog" {
		t.Fatalf("records = %+v", rec.rs)
	}
}

func TestEnsureRunningReportsFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		starter Starter
		probe   *seqProbe
		errPart string
	}{
		{"still down", &fakeStarter{}, &seqProbe{results: []bool{false}}, "still not running"},
		{"start error", &fakeStarter{err: errors.New("exec: not found")}, &seqProbe{results: []bool{false}}, "exec: not found"},
		{"no starter", nil, &seqProbe{results: []bool{false}}, ErrNoStarter.Error()},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			nt := &fakeNotifier{}
			rec := &memRecorder{}
			w, _ := New(Options{Sleep: noSleep, NotifyRestart: true, Notifier: nt, Recorder: rec},
				Role{Name: "notifier", Probes: []Probe{tt.probe}, Starter: tt.starter})
			if res := w.EnsureRunning(context.Background(), "notifier"); res.Running {
				t.Fatal("Running = true, want false")
			}
			if len(nt.sent) != 0 {
				t.Fatalf("unexpected notifications: %v", nt.sent)
			}
			if len(rec.rs) != 1 || rec.rs[0].OK || !strings.Contains(rec.rs[0].Error, tt.errPart) {
				t.Fatalf("records = %+v, want error containing %q", rec.rs, tt.errPart)
			}
		})
	}
}

// Not parallel: logx.New sets zerolog globals.
func TestEnsureRunningLogsUnderOwnRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdog.log")
	svc, log := logx.New(logx.Config{
		Level: "info",
		Role:  "watchdog",
		File:  logx.FileConfig{Enabled: true, Path: path},
	})
	w, _ := New(Options{Sleep: noSleep, Log: log},
		Role{Name: "notifier", Probes: []Probe{&seqProbe{results: []bool{false}}}, Starter: &fakeStarter{err: errors.New("exec: not found")}})
	w.EnsureRunning(context.Background(), "notifier")
	_ = svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) < 2 {
		t.Fatalf("got %d log lines, want at least 2: %q", len(lines), b)
	}
	for _, line := range lines {
		if !strings.Contains(line, " - watchdog - ") {
			t.Fatalf("line %q missing process role", line)
		}
		if !strings.Contains(line, "target_role=notifier") {
			t.Fatalf("line %q missing target_role", line)
		}
	}
}

func TestEnsureRunningUnknownRole(t *testing.T) {
	t.Parallel()
	w, _ := New(Options{})
	res := w.EnsureRunning(context.Background(), "ghost")
	if res.Running || !strings.Contains(res.Status, "unknown role") {
		t.Fatalf("res = %+v", res)
	}
}

func TestTickBoundsEachRole(t *testing.T) {
	t.Parallel()
	healthy := &seqProbe{results: []bool{true}}
	w, _ := New(Options{CheckTimeout: 20 * time.Millisecond, Sleep: noSleep},
		Role{Name: "stuck", Probes: []Probe{blockProbe{}}, Starter: &fakeStarter{}},
		Role{Name: "notifier", Probes: []Probe{healthy}},
	)

	start := time.Now()
	running := w.Tick(context.Background())
	if running != 1 {
		t.Fatalf("running = %d, want 1", running)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("tick took %v", took)
	}
}

func TestRunReportsToDaemon(t *testing.T) {
	t.Parallel()
	d := &fakeDaemon{}
	w, _ := New(Options{Interval: 5 * time.Millisecond, Daemon: d},
		Role{Name: "notifier", Probes: []Probe{&seqProbe{results: []bool{true}}}})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.states) < 3 {
		t.Fatalf("states = %v", d.states)
	}
	if d.states[0] != "READY" || d.states[1] != "WATCHDOG" || d.states[len(d.states)-1] != "STOPPING" {
		t.Fatalf("states = %v", d.states)
	}
}

func TestLockProbeUsesGuard(t *testing.T) {
	t.Parallel()
	g := guard.New(guard.Options{Dir: t.TempDir()})
	p := LockProbe{Guard: g, Role: "notifier"}
	if alive, _, _ := p.Probe(context.Background()); alive {
		t.Fatal("alive before acquire")
	}
	if !g.Acquire("notifier") {
		t.Fatal("Acquire failed")
	}
	defer g.Release("notifier")
	if alive, _, _ := p.Probe(context.Background()); !alive {
		t.Fatal("not alive after acquire")
	}
}

func TestHTTPProbe(t *testing.T) {
	t.Parallel()
	var running atomic.Bool
	running.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != webapp.PathStatus {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if running.Load() {
			_, _ = w.Write([]byte(`{"running":true,"message":"bot active"}`))
			return
		}
		_, _ = w.Write([]byte(`{"running":false}`))
	}))
	defer srv.Close()

	p := HTTPProbe{App: webapp.New(webapp.Config{BaseURL: srv.URL}, logx.Nop())}
	alive, detail, err := p.Probe(context.Background())
	if err != nil || !alive || detail != "bot active" {
		t.Fatalf("Probe = %v, %q, %v", alive, detail, err)
	}
	running.Store(false)
	if alive, _, _ := p.Probe(context.Background()); alive {
		t.Fatal("alive with running=false")
	}
}

func TestChannelProbe(t *testing.T) {
	t.Parallel()
	nt := &fakeNotifier{}
	p := ChannelProbe{Notifier: nt, Role: "notifier"}
	if alive, _, _ := p.Probe(context.Background()); !alive {
		t.Fatal("not alive with a working channel")
	}
	if nt.sent[0] != report.Test {
		t.Fatalf("category = %s, want test", nt.sent[0])
	}
	nt.fail = true
	alive, detail, _ := p.Probe(context.Background())
	if alive || detail != "chat not found" {
		t.Fatalf("Probe = %v, %q", alive, detail)
	}
}

type fakeUnits struct{ state string }

func (u fakeUnits) ActiveState(context.Context, string) (string, error) { return u.state, nil }

func TestSystemdProbe(t *testing.T) {
	t.Parallel()
	for state, want := range map[string]bool{"active": true, "failed": false, "not-found": false} {
		alive, _, err := SystemdProbe{Units: fakeUnits{state}, Unit: "barzin-notifier"}.Probe(context.Background())
		if err != nil || alive != want {
			t.Fatalf("%s: alive = %v, want %v (err %v)", state, alive, want, err)
		}
	}
}

func TestExecStarterDetaches(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	t.Parallel()
	logPath := filepath.Join(t.TempDir(), "logs", "notifier.out")
	s := ExecStarter{Command: []string{"/bin/sh", "-c", "echo started"}, Log: logPath}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		b, _ := os.ReadFile(logPath)
		if strings.Contains(string(b), "started") {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("log = %q", b)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExecStarterEmptyCommand(t *testing.T) {
	t.Parallel()
	if err := (ExecStarter{}).Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
