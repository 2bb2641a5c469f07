package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"barzin/internal/report"
	logx "barzin/pkg/logx"
)

var (
	ErrNoChannel   = errors.New("notification channel not configured")
	ErrRateLimited = errors.New("notification rate limit exceeded")
)

// Dispatcher delivers messages synchronously. It is safe for concurrent use.
type Dispatcher struct {
	ch  Channel
	log logx.Logger
	now func() time.Time

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, ch Channel, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		ch:  ch,
		log: log.With(logx.String("comp", "notifier")),
		now: time.Now,
	}
	d.applyLocked(cfg)
	return d
}

func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	d.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't fail.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (d *Dispatcher) config() (Config, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.limiter
}

// Notify sends to the configured default target.
func (d *Dispatcher) Notify(ctx context.Context, c report.Category, body string) DeliveryResult {
	cfg, _ := d.config()
	return d.Send(ctx, c, body, cfg.DefaultTarget)
}

// Send delivers one rendered message.
func (d *Dispatcher) Send(ctx context.Context, c report.Category, body, target string) DeliveryResult {
	return d.Deliver(ctx, Message{Category: c, Body: body, Target: target})
}

func (d *Dispatcher) Deliver(ctx context.Context, m Message) (res DeliveryResult) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, limiter := d.config()
	if strings.TrimSpace(m.Target) == "" {
		m.Target = cfg.DefaultTarget
	}
	start := d.now()

	defer func() {
		if r := recover(); r != nil {
			res = DeliveryResult{Detail: fmt.Sprintf("panic: %v", r)}
			d.log.Error("notification channel panicked",
				logx.String("category", m.Category.String()),
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)),
			)
		}
		res.Took = d.now().Sub(start)
		d.record(m, res)
	}()

	if err := d.deliver(ctx, cfg, limiter, m, &res); err != nil {
		res.Success = false
		res.Detail = err.Error()
		d.log.Warn("notification failed",
			logx.String("category", m.Category.String()),
			logx.String("target", m.Target),
			logx.Err(err),
		)
		return res
	}
	res.Success = true
	res.Detail = "ok"
	d.log.Info("notification sent",
		logx.String("category", m.Category.String()),
		logx.Int("message_id", res.MessageID),
	)
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, cfg Config, limiter *rate.Limiter, m Message, res *DeliveryResult) error {
	if d.ch == nil {
		return ErrNoChannel
	}
	if strings.TrimSpace(m.Body) == "" {
		return errors.New("empty message body")
	}
	if !limiter.Allow() {
		return ErrRateLimited
	}
	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	id, err := d.ch.SendHTML(cctx, m.Target, m.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s: %w", cfg.Timeout, err)
		}
		return err
	}
	res.MessageID = id
	return nil
}

func (d *Dispatcher) record(m Message, res DeliveryResult) {
	cfg, _ := d.config()
	d.hmu.Lock()
	defer d.hmu.Unlock()
	d.history = append(d.history, HistoryItem{
		At:       d.now(),
		Category: m.Category,
		Target:   m.Target,
		Success:  res.Success,
		Detail:   res.Detail,
	})
	if over := len(d.history) - cfg.HistorySize; over > 0 {
		d.history = append(d.history[:0], d.history[over:]...)
	}
}

// History returns recent deliveries, oldest first.
func (d *Dispatcher) History() []HistoryItem {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return append([]HistoryItem(nil), d.history...)
}
