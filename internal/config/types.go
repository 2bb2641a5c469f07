package config

// Config is the on-disk configuration shared by every role binary.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// The same file can drive both the notifier and the watchdog; each role
// only reads the sections it needs.
type Config struct {
	// Role names this process for the single-instance guard and log lines.
	// cmd flags may override it.
	Role string `json:"role,omitempty"`

	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Lock      LockConfig      `json:"lock"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Market    MarketConfig    `json:"market"`
	WebApp    WebAppConfig    `json:"webapp"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Watchdog  WatchdogConfig  `json:"watchdog"`
}

// TelegramConfig controls the notification channel.
//
// Token and ChatID may be supplied via TELEGRAM_BOT_TOKEN / DEFAULT_CHAT_ID.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`
	// APIURL overrides the Bot API base URL (default https://api.telegram.org).
	APIURL string `json:"api_url,omitempty"`
	// Timeout bounds each delivery call. Default "10s".
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// HistorySize is the number of recent deliveries kept in memory.
	HistorySize int `json:"history_size,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// Format is "plain" (default) or "json".
	Format string `json:"format,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// LockConfig controls the single-instance guard.
type LockConfig struct {
	Dir string `json:"dir"`
	// StaleAfter is the age after which a lock is reclaimable. Default "1h".
	StaleAfter string `json:"stale_after,omitempty"`
}

// StorageConfig controls the optional run history.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./run/history" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// MarketConfig controls the price source used by price reports.
type MarketConfig struct {
	// URL is the CoinGecko API base (default https://api.coingecko.com/api/v3).
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
	// Simulate falls back to generated prices when the source fails.
	// Pointer so an omitted key means "true".
	Simulate *bool         `json:"simulate,omitempty"`
	Symbols  []MarketAsset `json:"symbols,omitempty"`
}

type MarketAsset struct {
	Symbol string `json:"symbol"`
	// ID is the CoinGecko coin id (e.g. "bitcoin").
	ID string `json:"id"`
	// Base is the reference price used for simulated data.
	Base float64 `json:"base,omitempty"`
}

// WebAppConfig points at the local web application trigger surface.
type WebAppConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
}

// SchedulerConfig controls the periodic scheduler core.
type SchedulerConfig struct {
	// Tick is the loop interval. Default "30s"; values above 60s are clamped.
	Tick string `json:"tick,omitempty"`
	// RunOnStart runs every task once right after startup.
	RunOnStart bool `json:"run_on_start"`
	// TaskTimeout bounds a single action. Default "2m".
	TaskTimeout string `json:"task_timeout,omitempty"`
	// Timezone applies to cron schedules (IANA name).
	Timezone string       `json:"timezone,omitempty"`
	Tasks    []TaskConfig `json:"tasks"`
}

// TaskConfig declares one recurring task.
//
// Kind values:
//   - "price_report":   fetch market data and send a price-report message
//   - "system_status":  send a system-status message
//   - "test":           send a test message
//   - "keep_alive":     GET each of Paths on the web app
//   - "webapp_trigger": call Path on the web app (e.g. "/api/telegram/send-price-report")
//   - "log_status":     write a heartbeat log line
type TaskConfig struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	Kind     string   `json:"kind"`
	Disabled bool     `json:"disabled,omitempty"`
	Path     string   `json:"path,omitempty"`
	Paths    []string `json:"paths,omitempty"`
}

// WatchdogConfig controls the process supervisor.
type WatchdogConfig struct {
	// Interval between supervisor ticks. Default "5m".
	Interval string `json:"interval,omitempty"`
	// Grace is the wait between a start attempt and the re-check. Default "3s".
	Grace string `json:"grace,omitempty"`
	// CheckTimeout bounds one role's check+restart. Default "30s".
	CheckTimeout  string          `json:"check_timeout,omitempty"`
	NotifyRestart bool            `json:"notify_restart"`
	Roles         []MonitoredRole `json:"roles"`
}

// MonitoredRole describes how to probe and start one role.
type MonitoredRole struct {
	Name   string        `json:"name"`
	Probes []ProbeConfig `json:"probes"`
	Start  StartConfig   `json:"start"`
}

// ProbeConfig kinds: "lock", "http", "channel", "systemd".
type ProbeConfig struct {
	Kind string `json:"kind"`
	// Path is the web app status path for "http" (default "/api/telegram/status").
	Path string `json:"path,omitempty"`
	// Expr is the JSONPath that must evaluate to true for "http" (default "$.running").
	Expr string `json:"expr,omitempty"`
	// Unit is the systemd unit for "systemd".
	Unit string `json:"unit,omitempty"`
}

// StartConfig kinds: "exec", "http", "systemd".
type StartConfig struct {
	Kind    string   `json:"kind"`
	Command []string `json:"command,omitempty"`
	// Log receives the child's stdout/stderr for "exec".
	Log  string `json:"log,omitempty"`
	Path string `json:"path,omitempty"`
	Unit string `json:"unit,omitempty"`
}
