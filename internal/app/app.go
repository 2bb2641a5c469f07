// Package app assembles the notifier and watchdog roles from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"barzin/internal/channel/telegram"
	"barzin/internal/config"
	"barzin/internal/guard"
	"barzin/internal/market"
	"barzin/internal/notifier"
	"barzin/internal/report"
	"barzin/internal/storage"
	"barzin/internal/webapp"
	logx "barzin/pkg/logx"
)

// ErrLocked is returned by Acquire when another live process holds the role.
var ErrLocked = guard.ErrLocked

type Options struct {
	ConfigPath string
	// Role overrides the config's role; DefaultRole applies when both are empty.
	Role        string
	DefaultRole string
	// Interval overrides the scheduler tick or the watchdog interval.
	Interval time.Duration
	// Once runs a single pass and returns.
	Once bool
	// RequireChannel fails New when the Telegram channel is not configured.
	RequireChannel bool
}

// App holds the shared components of one role process.
type App struct {
	opts Options
	role string

	cfgm *config.Manager
	cfg  *config.Config

	logs *logx.Service
	log  logx.Logger

	guard   *guard.Guard
	store   storage.Store
	channel *telegram.Channel
	notif   *notifier.Dispatcher
	render  *report.Renderer
	market  *market.Client
	web     *webapp.Client
	loc     *time.Location

	started time.Time
	// heartbeat runs after every scheduler tick and watchdog pass.
	heartbeat func(context.Context)
}

func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	role := firstNonEmpty(opts.Role, cfg.Role, opts.DefaultRole)
	if role == "" {
		return nil, errors.New("role required (set role in config or pass -role)")
	}

	// Bootstrap logging with the Telegram sink off; it is enabled once the
	// channel exists so Apply never runs without a sender.
	logCfg := mapLogConfig(cfg, role)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		opts:    opts,
		role:    role,
		cfgm:    cfgm,
		cfg:     cfg,
		logs:    logSvc,
		log:     log.With(logx.String("comp", "app")),
		started: time.Now(),
	}
	a.heartbeat = a.refreshLock
	if err := a.init(cfg, log, logCfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(cfg *config.Config, log logx.Logger, logCfg logx.Config) error {
	gopts, err := mapGuardOptions(cfg, log)
	if err != nil {
		return err
	}
	a.guard = guard.New(gopts)

	if a.loc, err = mapLocation(cfg); err != nil {
		return err
	}
	a.render = report.NewRenderer(nil, a.loc)

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	if a.opts.RequireChannel {
		if err := cfg.RequireChannel(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		cc, err := mapChannelConfig(cfg)
		if err != nil {
			return err
		}
		if a.channel, err = telegram.New(cc, log); err != nil {
			return err
		}
		a.logs.SetSender(a.channel)
		a.logs.Apply(logCfg)
	} else if logCfg.Telegram.Enabled {
		a.log.Warn("telegram logging enabled but no token configured; sink stays off")
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	// A nil *telegram.Channel must not become a non-nil interface.
	var ch notifier.Channel
	if a.channel != nil {
		ch = a.channel
	}
	a.notif = notifier.New(ncfg, ch, log)

	mc, err := mapMarketConfig(cfg)
	if err != nil {
		return err
	}
	a.market = market.New(mc, log)

	wc, err := mapWebAppConfig(cfg)
	if err != nil {
		return err
	}
	a.web = webapp.New(wc, log)
	return nil
}

func (a *App) Role() string        { return a.role }
func (a *App) Log() logx.Logger    { return a.log }
func (a *App) Guard() *guard.Guard { return a.guard }

// Acquire takes the single-instance lock for the app's role. It returns
// ErrLocked when another live instance holds it.
func (a *App) Acquire() error {
	if err := a.guard.TryAcquire(a.role); err != nil {
		if errors.Is(err, guard.ErrLocked) {
			a.log.Warn("another instance is running; exiting", logx.String("lock", a.role), logx.Err(err))
		} else {
			a.log.Error("lock acquisition failed", logx.String("lock", a.role), logx.Err(err))
		}
		return err
	}
	return nil
}

// Release drops every lock this process holds. Safe to call repeatedly.
func (a *App) Release() {
	if a.guard != nil {
		a.guard.ReleaseAll()
	}
}

// Close releases storage and flushes logs.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// refreshLock keeps a held lock fresh so a long-running owner never looks
// stale to the next starter.
func (a *App) refreshLock(context.Context) {
	if _, held := a.guard.Held(a.role); !held {
		return
	}
	if err := a.guard.Refresh(a.role); err != nil {
		a.log.Warn("lock refresh failed", logx.String("lock", a.role), logx.Err(err))
	}
}

// uptime is measured from lock acquisition, or process start when the lock
// is not held.
func (a *App) uptime() time.Duration {
	if rec, ok := a.guard.Held(a.role); ok {
		return time.Since(rec.AcquiredAt)
	}
	return time.Since(a.started)
}

// deliver renders body for c and sends it to the default chat. A failed
// delivery becomes an error so the scheduler records it.
func (a *App) deliver(ctx context.Context, c report.Category, body string) error {
	res := a.notif.Notify(ctx, c, body)
	if !res.Success {
		return fmt.Errorf("deliver %s: %s", c, res.Detail)
	}
	return nil
}

// ReportFatal sends a best-effort system-error notification. It uses its own
// deadline because the root context is usually already cancelled.
func (a *App) ReportFatal(ctx context.Context, cause error) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	body := a.render.Render(report.SystemError, report.ErrorBody(a.role, cause))
	if res := a.notif.Notify(nctx, report.SystemError, body); !res.Success {
		a.log.Warn("system-error notice not delivered", logx.String("detail", res.Detail))
	}
}

// SendEvent sends one boot, shutdown or test message.
func (a *App) SendEvent(ctx context.Context, event string) error {
	c, err := report.ParseCategory(event)
	if err != nil {
		return err
	}
	var text string
	switch c {
	case report.Boot:
		text = "System started. The notifier will resume its schedule."
	case report.Shutdown:
		text = "System is shutting down. Notifications pause until the next boot."
	case report.Test:
		text = "Test message. The notification channel is working."
	default:
		return fmt.Errorf("event %q not supported (use boot, shutdown or test)", event)
	}
	st := report.HostStatus("", 0)
	body := report.Text(text)
	if st.Host != "" {
		body = report.Text(text + "\nHost: " + st.Host)
	}
	return a.deliver(ctx, c, a.render.Render(c, body))
}

// runWithConfigWatch runs loop next to the config watcher and reload
// fan-out. The first error cancels the others.
func (a *App) runWithConfigWatch(ctx context.Context, loop func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	sub := a.cfgm.Subscribe(4)
	g.Go(func() error {
		defer a.cfgm.Unsubscribe(sub)
		a.applyReloads(gctx, sub)
		return nil
	})
	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error { return loop(gctx) })
	return g.Wait()
}

// applyReloads applies logging changes live. Other sections only take effect
// after a restart.
func (a *App) applyReloads(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			sections, fields := config.SummarizeChange(last, next)
			last = next
			if len(sections) == 0 {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			fields = append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)
			a.log.Info("config reloaded", fields...)

			for _, s := range sections {
				switch s {
				case "logging":
					lc := mapLogConfig(next, a.role)
					if lc.Telegram.Enabled && a.channel == nil {
						lc.Telegram.Enabled = false
					}
					a.logs.Apply(lc)
				default:
					a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
				}
			}
		}
	}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
