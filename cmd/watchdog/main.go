package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barzin/internal/app"
	logx "barzin/pkg/logx"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	var (
		cfgPath  string
		role     string
		once     bool
		interval time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.StringVar(&role, "role", "watchdog", "role name for the watchdog's own lock")
	flag.BoolVar(&once, "once", false, "check every role once and exit")
	flag.DurationVar(&interval, "interval", 0, "override check interval")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath:  cfgPath,
		Role:        role,
		DefaultRole: "watchdog",
		Interval:    interval,
		Once:        once,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return app.StopStartup.ExitCode()
	}
	defer a.Close()
	log := a.Log()

	if err := a.Acquire(); err != nil {
		if errors.Is(err, app.ErrLocked) {
			return app.StopLocked.ExitCode()
		}
		return app.StopStartup.ExitCode()
	}
	defer a.Release()
	defer func() {
		if r := recover(); r != nil {
			log.Error("watchdog panicked", logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 32)))
			a.Release()
			code = app.StopFatal.ExitCode()
		}
	}()

	reason := app.StopSignal
	if once {
		reason = app.StopOnce
	}
	if err := a.RunWatchdog(ctx); err != nil {
		log.Error("watchdog stopped", logx.Err(err))
		reason = app.StopFatal
	}
	log.Info("stopping", logx.String("reason", string(reason)))
	return reason.ExitCode()
}
