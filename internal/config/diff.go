package config

import (
	"reflect"
	"strings"

	logx "barzin/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// fields for logging. Tokens are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	fields := make([]logx.Field, 0, 12)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.token_changed", strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)),
			logx.Bool("telegram.chat_changed", oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID),
			logx.String("telegram.timeout", newCfg.Telegram.Timeout),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Lock != newCfg.Lock {
		changed = append(changed, "lock")
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Market, newCfg.Market) {
		changed = append(changed, "market")
	}
	if oldCfg.WebApp != newCfg.WebApp {
		changed = append(changed, "webapp")
	}
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		fields = append(fields, logx.Int("scheduler.tasks", len(newCfg.Scheduler.Tasks)))
	}
	if !reflect.DeepEqual(oldCfg.Watchdog, newCfg.Watchdog) {
		changed = append(changed, "watchdog")
		fields = append(fields, logx.Int("watchdog.roles", len(newCfg.Watchdog.Roles)))
	}
	return changed, fields
}
