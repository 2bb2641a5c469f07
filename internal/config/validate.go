package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	taskKinds  = []string{"price_report", "system_status", "test", "keep_alive", "webapp_trigger", "log_status"}
	probeKinds = []string{"lock", "http", "channel", "systemd"}
	startKinds = []string{"exec", "http", "systemd"}
)

// Validate checks structural problems that would otherwise surface only when a
// task first runs. Schedules are parsed later by the scheduler package.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	durations := map[string]string{
		"telegram.timeout":       c.Telegram.Timeout,
		"lock.stale_after":       c.Lock.StaleAfter,
		"market.timeout":         c.Market.Timeout,
		"webapp.timeout":         c.WebApp.Timeout,
		"scheduler.tick":         c.Scheduler.Tick,
		"scheduler.task_timeout": c.Scheduler.TaskTimeout,
		"watchdog.interval":      c.Watchdog.Interval,
		"watchdog.grace":         c.Watchdog.Grace,
		"watchdog.check_timeout": c.Watchdog.CheckTimeout,
	}
	if c.Storage != nil {
		durations["storage.busy_timeout"] = c.Storage.BusyTimeout
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	seen := map[string]bool{}
	for i, t := range c.Scheduler.Tasks {
		path := fmt.Sprintf("scheduler.tasks[%d]", i)
		name := strings.TrimSpace(t.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s: name required", path))
		} else if seen[name] {
			errs = append(errs, fmt.Errorf("%s: duplicate task name %q", path, name))
		}
		seen[name] = true
		if strings.TrimSpace(t.Schedule) == "" {
			errs = append(errs, fmt.Errorf("%s: schedule required", path))
		}
		if !oneOf(t.Kind, taskKinds) {
			errs = append(errs, fmt.Errorf("%s: unknown kind %q", path, t.Kind))
		}
		if t.Kind == "webapp_trigger" && strings.TrimSpace(t.Path) == "" {
			errs = append(errs, fmt.Errorf("%s: path required for webapp_trigger", path))
		}
	}

	for i, r := range c.Watchdog.Roles {
		path := fmt.Sprintf("watchdog.roles[%d]", i)
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name required", path))
		}
		if len(r.Probes) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one probe required", path))
		}
		for j, p := range r.Probes {
			if !oneOf(p.Kind, probeKinds) {
				errs = append(errs, fmt.Errorf("%s.probes[%d]: unknown kind %q", path, j, p.Kind))
			}
			if p.Kind == "systemd" && strings.TrimSpace(p.Unit) == "" {
				errs = append(errs, fmt.Errorf("%s.probes[%d]: unit required", path, j))
			}
		}
		switch {
		case !oneOf(r.Start.Kind, startKinds):
			errs = append(errs, fmt.Errorf("%s.start: unknown kind %q", path, r.Start.Kind))
		case r.Start.Kind == "exec" && len(r.Start.Command) == 0:
			errs = append(errs, fmt.Errorf("%s.start: command required for exec", path))
		case r.Start.Kind == "systemd" && strings.TrimSpace(r.Start.Unit) == "":
			errs = append(errs, fmt.Errorf("%s.start: unit required for systemd", path))
		}
	}

	return errors.Join(errs...)
}

// RequireChannel reports whether the Telegram channel is fully configured.
func (c *Config) RequireChannel() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is empty (set it or TELEGRAM_BOT_TOKEN)")
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		return errors.New("telegram.chat_id is empty (set it or DEFAULT_CHAT_ID)")
	}
	return nil
}

func oneOf(v string, set []string) bool {
	v = strings.TrimSpace(v)
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
