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
		event    string
		once     bool
		interval time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.StringVar(&role, "role", "", "role name for the instance lock (default from config, else notifier)")
	flag.StringVar(&event, "event", "", "send one message (boot, shutdown or test) and exit")
	flag.BoolVar(&once, "once", false, "run every task once and exit")
	flag.DurationVar(&interval, "interval", 0, "override scheduler tick")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath:     cfgPath,
		Role:           role,
		DefaultRole:    "notifier",
		Interval:       interval,
		Once:           once,
		RequireChannel: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		return app.StopStartup.ExitCode()
	}
	defer a.Close()
	log := a.Log()

	if event != "" {
		if err := a.SendEvent(ctx, event); err != nil {
			log.Error("event not sent", logx.String("event", event), logx.Err(err))
			return app.StopEventErr.ExitCode()
		}
		return 0
	}

	if err := a.Acquire(); err != nil {
		if errors.Is(err, app.ErrLocked) {
			return app.StopLocked.ExitCode()
		}
		return app.StopStartup.ExitCode()
	}
	defer a.Release()
	defer func() {
		if r := recover(); r != nil {
			log.Error("notifier panicked", logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 32)))
			a.ReportFatal(ctx, fmt.Errorf("panic: %v", r))
			a.Release()
			code = app.StopFatal.ExitCode()
		}
	}()

	reason := app.StopSignal
	if once {
		reason = app.StopOnce
	}
	if err := a.RunNotifier(ctx); err != nil {
		log.Error("notifier stopped", logx.Err(err))
		reason = app.StopFatal
	}
	log.Info("stopping", logx.String("reason", string(reason)))
	return reason.ExitCode()
}
