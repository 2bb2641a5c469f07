package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverrides are the environment variables honoured on top of the file.
// The names match the ones the bot scripts have always read.
type envOverrides struct {
	Token    string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"DEFAULT_CHAT_ID"`
	AppURL   string `env:"APP_URL"`
	LogLevel string `env:"BARZIN_LOG_LEVEL"`
	LockDir  string `env:"BARZIN_LOCK_DIR"`
	Role     string `env:"BARZIN_ROLE"`
}

// ApplyEnv loads dotenv (if it exists; existing variables win) and copies
// non-empty overrides into cfg.
func ApplyEnv(cfg *Config, dotenv string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(dotenv) != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, o.Token)
	set(&cfg.Telegram.ChatID, o.ChatID)
	set(&cfg.WebApp.BaseURL, o.AppURL)
	set(&cfg.Logging.Level, o.LogLevel)
	set(&cfg.Lock.Dir, o.LockDir)
	set(&cfg.Role, o.Role)
	return nil
}
