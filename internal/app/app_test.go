package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"barzin/internal/config"
	"barzin/internal/scheduler"
)

// fakeTelegram records sendMessage texts.
type fakeTelegram struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		http.NotFound(w, r)
		return
	}
	body, _ := io.ReadAll(r.Body)
	text := ""
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		text, _ = m["text"].(string)
	} else if v, err := url.ParseQuery(string(body)); err == nil {
		text = v.Get("text")
	}
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":7,"chat":{"id":123,"type":"private"},"date":0}}`)
}

func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// fakeWebApp counts hits per path.
type fakeWebApp struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fakeWebApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if f.hits == nil {
		f.hits = map[string]int{}
	}
	f.hits[r.URL.Path]++
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"success":true,"running":true,"message":"ok"}`)
}

func (f *fakeWebApp) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func marketHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{
		"bitcoin":{"usd":82500,"usd_24h_change":3.2},
		"ripple":{"usd":0.52,"usd_24h_change":-0.5}
	}`)
}

type env struct {
	dir string
	tg  *fakeTelegram
	web *fakeWebApp
	cfg string
}

func newEnv(t *testing.T, extra string) env {
	t.Helper()
	e := env{dir: t.TempDir(), tg: &fakeTelegram{}, web: &fakeWebApp{}}
	tgSrv := httptest.NewServer(e.tg)
	webSrv := httptest.NewServer(e.web)
	mktSrv := httptest.NewServer(http.HandlerFunc(marketHandler))
	t.Cleanup(tgSrv.Close)
	t.Cleanup(webSrv.Close)
	t.Cleanup(mktSrv.Close)

	yaml := `
telegram:
  token: "TEST:TOKEN"
  chat_id: "123"
  api_url: "` + tgSrv.URL + `"
  timeout: 2s
  rate_per_sec: 50
logging:
  level: error
lock:
  dir: "` + filepath.Join(e.dir, "run") + `"
storage:
  driver: file
  path: "` + filepath.Join(e.dir, "history") + `"
market:
  url: "` + mktSrv.URL + `"
  simulate: false
  symbols:
    - {symbol: btc, id: bitcoin, base: 76000}
    - {symbol: xrp, id: ripple, base: 0.53}
webapp:
  base_url: "` + webSrv.URL + `"
  timeout: 2s
` + extra
	e.cfg = filepath.Join(e.dir, "config.yaml")
	if err := os.WriteFile(e.cfg, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return e
}

const notifierTasks = `
scheduler:
  tick: 30s
  tasks:
    - {name: price-report, schedule: 10m, kind: price_report}
    - {name: test-message, schedule: "0 9 * * *", kind: test}
    - {name: keep-alive, schedule: 5m, kind: keep_alive, paths: ["/", "/health"]}
    - {name: trigger, schedule: 6h, kind: webapp_trigger, path: /api/telegram/send-status}
    - {name: heartbeat, schedule: 1m, kind: log_status}
    - {name: status, schedule: 6h, kind: system_status}
    - {name: off, schedule: 1m, kind: test, disabled: true}
`

func newApp(t *testing.T, e env, opts Options) *App {
	t.Helper()
	opts.ConfigPath = e.cfg
	if opts.DefaultRole == "" {
		opts.DefaultRole = "notifier"
	}
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		a.Release()
		_ = a.Close()
	})
	return a
}

func TestRunNotifierOnce(t *testing.T) {
	e := newEnv(t, notifierTasks)
	a := newApp(t, e, Options{Once: true, RequireChannel: true})
	if err := a.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := a.RunNotifier(context.Background()); err != nil {
		t.Fatalf("RunNotifier: %v", err)
	}

	sent := e.tg.sent()
	if len(sent) != 3 {
		t.Fatalf("sent %d messages, want 3: %q", len(sent), sent)
	}
	if !strings.Contains(sent[0], "Price Report") || !strings.Contains(sent[0], "82,500.00") || !strings.Contains(sent[0], "-0.50%") {
		t.Fatalf("price report = %q", sent[0])
	}
	if !strings.Contains(sent[1], "Test Message") {
		t.Fatalf("test message = %q", sent[1])
	}
	if !strings.Contains(sent[2], "System Status") || !strings.Contains(sent[2], "price-report: runs=1 failures=0") {
		t.Fatalf("status = %q", sent[2])
	}
	if e.web.count("/") != 1 || e.web.count("/health") != 1 || e.web.count("/api/telegram/send-status") != 1 {
		t.Fatalf("webapp hits = %v", e.web.hits)
	}

	runs, err := a.store.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 6 {
		t.Fatalf("recorded %d runs, want 6", len(runs))
	}
	for _, r := range runs {
		if !r.OK || r.Role != "notifier" {
			t.Fatalf("run = %+v", r)
		}
	}
}

func TestRunNotifierReportsLoopFailure(t *testing.T) {
	e := newEnv(t, `
scheduler:
  run_on_start: true
  tasks:
    - {name: heartbeat, schedule: 1m, kind: log_status}
`)
	a := newApp(t, e, Options{RequireChannel: true})
	if err := a.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	a.heartbeat = func(context.Context) { panic("lock dir vanished") }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.RunNotifier(ctx)
	if !errors.Is(err, scheduler.ErrLoopFatal) {
		t.Fatalf("RunNotifier = %v, want ErrLoopFatal", err)
	}
	if ctx.Err() != nil {
		t.Fatal("RunNotifier returned only after the test deadline")
	}

	sent := e.tg.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1: %q", len(sent), sent)
	}
	if !strings.Contains(sent[0], "Error") || !strings.Contains(sent[0], "lock dir vanished") {
		t.Fatalf("system-error message = %q", sent[0])
	}
	if got := StopFatal.ExitCode(); got != 1 {
		t.Fatalf("StopFatal.ExitCode() = %d, want 1", got)
	}
}

func TestNewRequiresChannel(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	_ = os.WriteFile(path, []byte(`{"lock":{"dir":"`+filepath.ToSlash(dir)+`"}}`), 0o644)
	if _, err := New(Options{ConfigPath: path, DefaultRole: "notifier", RequireChannel: true}); err == nil {
		t.Fatal("expected error without a telegram token")
	}
}

func TestAcquireContention(t *testing.T) {
	e := newEnv(t, notifierTasks)
	first := newApp(t, e, Options{})
	second := newApp(t, e, Options{})
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := second.Acquire(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire = %v, want ErrLocked", err)
	}
	first.Release()
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestSendEvent(t *testing.T) {
	e := newEnv(t, notifierTasks)
	a := newApp(t, e, Options{})
	if err := a.SendEvent(context.Background(), "boot"); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	if sent := e.tg.sent(); len(sent) != 1 || !strings.Contains(sent[0], "System Started") {
		t.Fatalf("sent = %q", sent)
	}
	if err := a.SendEvent(context.Background(), "price-report"); err == nil {
		t.Fatal("expected error for a non-event category")
	}
}

func TestRunWatchdogOnce(t *testing.T) {
	e := newEnv(t, notifierTasks+`
watchdog:
  grace: 1ms
  notify_restart: true
  roles:
    - name: webapp
      probes: [{kind: http}]
      start: {kind: http}
    - name: notifier
      probes: [{kind: lock}]
      start: {kind: exec, command: ["/nonexistent/barzin-notifier"]}
`)
	a := newApp(t, e, Options{Role: "watchdog", Once: true})
	if err := a.RunWatchdog(context.Background()); err != nil {
		t.Fatalf("RunWatchdog: %v", err)
	}
	if e.web.count("/api/telegram/status") != 1 {
		t.Fatalf("status hits = %d, want 1", e.web.count("/api/telegram/status"))
	}
	runs, err := a.store.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].OK || runs[0].Task != "restart:notifier" || runs[0].Role != "watchdog" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestStopReasonExitCode(t *testing.T) {
	t.Parallel()
	tests := map[StopReason]int{
		StopSignal:   0,
		StopOnce:     0,
		StopLocked:   0,
		StopStartup:  1,
		StopFatal:    1,
		StopEventErr: 1,
	}
	for r, want := range tests {
		if got := r.ExitCode(); got != want {
			t.Fatalf("%s.ExitCode() = %d, want %d", r, got, want)
		}
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sc      *config.StorageConfig
		enabled bool
		wantErr bool
	}{
		{"absent", nil, false, false},
		{"none", &config.StorageConfig{Driver: "none"}, false, false},
		{"file", &config.StorageConfig{Driver: "file", Path: "./run/history"}, true, false},
		{"sqlite", &config.StorageConfig{Driver: "SQLite", Path: "./run/h.db", BusyTimeout: "2s"}, true, false},
		{"sqlite without path", &config.StorageConfig{Driver: "sqlite"}, false, true},
		{"bad busy timeout", &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "soon"}, false, true},
		{"unknown", &config.StorageConfig{Driver: "mongo"}, false, true},
	}
	for _, tt := range tests {
		_, enabled, err := mapStorageConfig(&config.Config{Storage: tt.sc})
		if (err != nil) != tt.wantErr || enabled != tt.enabled {
			t.Fatalf("%s: enabled=%v err=%v", tt.name, enabled, err)
		}
	}
}

func TestMapMarketConfig(t *testing.T) {
	t.Parallel()
	mc, err := mapMarketConfig(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if !mc.Simulate {
		t.Fatal("simulate should default to true")
	}
	off := false
	mc, err = mapMarketConfig(&config.Config{Market: config.MarketConfig{
		Simulate: &off,
		Symbols:  []config.MarketAsset{{Symbol: " sol ", ID: "solana", Base: 165}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if mc.Simulate || len(mc.Assets) != 1 || mc.Assets[0].Symbol != "SOL" {
		t.Fatalf("mc = %+v", mc)
	}
	if _, err := mapMarketConfig(&config.Config{Market: config.MarketConfig{Symbols: []config.MarketAsset{{Symbol: "X"}}}}); err == nil {
		t.Fatal("expected error for asset without id")
	}
}

func TestMapSchedulerOptionsOverride(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Tick: "45s", TaskTimeout: "1m", RunOnStart: true}}
	opts, err := mapSchedulerOptions(cfg, 0)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Tick.String() != "45s" || opts.TaskTimeout.String() != "1m0s" || !opts.RunOnStart {
		t.Fatalf("opts = %+v", opts)
	}
	opts, _ = mapSchedulerOptions(cfg, 10e9)
	if opts.Tick.String() != "10s" {
		t.Fatalf("override tick = %v", opts.Tick)
	}
}
