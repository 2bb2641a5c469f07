package app

import (
	"fmt"
	"strings"
	"time"

	"barzin/internal/channel/telegram"
	"barzin/internal/config"
	"barzin/internal/guard"
	"barzin/internal/market"
	"barzin/internal/notifier"
	"barzin/internal/scheduler"
	"barzin/internal/storage"
	"barzin/internal/webapp"
	logx "barzin/pkg/logx"
)

func mapLogConfig(cfg *config.Config, role string) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		Role:    role,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
			Format:  lc.File.Format,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapGuardOptions(cfg *config.Config, log logx.Logger) (guard.Options, error) {
	stale, err := config.ParseDurationOrDefault("lock.stale_after", cfg.Lock.StaleAfter, guard.DefaultStaleAfter)
	if err != nil {
		return guard.Options{}, err
	}
	dir := strings.TrimSpace(cfg.Lock.Dir)
	if dir == "" {
		dir = "./run"
	}
	return guard.Options{Dir: dir, StaleAfter: stale, Log: log}, nil
}

func mapChannelConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:         strings.TrimSpace(cfg.Telegram.Token),
		APIURL:        cfg.Telegram.APIURL,
		Timeout:       timeout,
		DefaultTarget: strings.TrimSpace(cfg.Telegram.ChatID),
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	if cfg.Telegram.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("telegram.rate_per_sec must be >= 0")
	}
	if cfg.Telegram.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("telegram.history_size must be >= 0")
	}
	return notifier.Config{
		Timeout:       timeout,
		RatePerSec:    cfg.Telegram.RatePerSec,
		HistorySize:   cfg.Telegram.HistorySize,
		DefaultTarget: strings.TrimSpace(cfg.Telegram.ChatID),
	}, nil
}

func mapMarketConfig(cfg *config.Config) (market.Config, error) {
	mc := cfg.Market
	timeout, err := config.ParseDurationOrDefault("market.timeout", mc.Timeout, 5*time.Second)
	if err != nil {
		return market.Config{}, err
	}
	simulate := true
	if mc.Simulate != nil {
		simulate = *mc.Simulate
	}
	out := market.Config{URL: mc.URL, Timeout: timeout, Simulate: simulate}
	for i, a := range mc.Symbols {
		if strings.TrimSpace(a.Symbol) == "" || strings.TrimSpace(a.ID) == "" {
			return market.Config{}, fmt.Errorf("market.symbols[%d]: symbol and id required", i)
		}
		out.Assets = append(out.Assets, market.Asset{
			Symbol: strings.ToUpper(strings.TrimSpace(a.Symbol)),
			ID:     strings.TrimSpace(a.ID),
			Base:   a.Base,
		})
	}
	return out, nil
}

func mapWebAppConfig(cfg *config.Config) (webapp.Config, error) {
	timeout, err := config.ParseDurationOrDefault("webapp.timeout", cfg.WebApp.Timeout, 10*time.Second)
	if err != nil {
		return webapp.Config{}, err
	}
	return webapp.Config{BaseURL: cfg.WebApp.BaseURL, Timeout: timeout}, nil
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// mapSchedulerOptions fills the timing fields; the caller wires hooks.
// tickOverride (from -interval) wins over the file when positive.
func mapSchedulerOptions(cfg *config.Config, tickOverride time.Duration) (scheduler.Options, error) {
	tick, err := config.ParseDurationOrDefault("scheduler.tick", cfg.Scheduler.Tick, scheduler.DefaultTick)
	if err != nil {
		return scheduler.Options{}, err
	}
	if tickOverride > 0 {
		tick = tickOverride
	}
	taskTimeout, err := config.ParseDurationOrDefault("scheduler.task_timeout", cfg.Scheduler.TaskTimeout, scheduler.DefaultTaskTimeout)
	if err != nil {
		return scheduler.Options{}, err
	}
	return scheduler.Options{
		Tick:        tick,
		RunOnStart:  cfg.Scheduler.RunOnStart,
		TaskTimeout: taskTimeout,
	}, nil
}

type watchdogTiming struct {
	interval     time.Duration
	grace        time.Duration
	checkTimeout time.Duration
}

func mapWatchdogTiming(cfg *config.Config, intervalOverride time.Duration) (watchdogTiming, error) {
	var t watchdogTiming
	var err error
	wc := cfg.Watchdog
	if t.interval, err = config.ParseDurationOrDefault("watchdog.interval", wc.Interval, 5*time.Minute); err != nil {
		return t, err
	}
	if intervalOverride > 0 {
		t.interval = intervalOverride
	}
	if t.grace, err = config.ParseDurationOrDefault("watchdog.grace", wc.Grace, 3*time.Second); err != nil {
		return t, err
	}
	if t.checkTimeout, err = config.ParseDurationOrDefault("watchdog.check_timeout", wc.CheckTimeout, 30*time.Second); err != nil {
		return t, err
	}
	return t, nil
}
