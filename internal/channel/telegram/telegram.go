// Package telegram delivers text messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"barzin/pkg/logx"
	"barzin/pkg/tgui"
)

const DefaultAPIURL = tele.DefaultApiURL

type Config struct {
	Token string
	// APIURL overrides the Bot API base URL.
	APIURL string
	// Timeout bounds one HTTP call. Default 10s.
	Timeout time.Duration
	// DefaultTarget receives log forwarding (SendLog).
	DefaultTarget string
}

// Channel sends messages with telebot. It never polls for updates.
type Channel struct {
	bot *tele.Bot
	log logx.Logger

	defaultTarget string
}

func New(cfg Config, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	url := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if url == "" {
		url = DefaultAPIURL
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     url,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Channel{
		bot:           b,
		log:           log.With(logx.String("comp", "telegram")),
		defaultTarget: strings.TrimSpace(cfg.DefaultTarget),
	}, nil
}

// Target is a chat id with an optional forum thread.
type Target struct {
	ChatID   int64
	ThreadID int
}

// ParseTarget accepts "<chat_id>" or "<chat_id>:<thread_id>".
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, errors.New("empty chat target")
	}
	chat, thread, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid chat id %q: %w", chat, err)
	}
	t := Target{ChatID: id}
	if hasThread {
		tid, err := strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || tid < 0 {
			return Target{}, fmt.Errorf("invalid thread id %q", thread)
		}
		t.ThreadID = tid
	}
	return t, nil
}

// SendHTML delivers text to target with ParseMode=HTML. Texts longer than
// Telegram's limit are split on line boundaries and sent in order; the id of
// the first message is returned.
func (c *Channel) SendHTML(ctx context.Context, target, text string) (int, error) {
	return c.send(ctx, target, text, tele.ModeHTML)
}

// SendLog forwards a plain-text log line to the default target.
func (c *Channel) SendLog(ctx context.Context, text string) error {
	_, err := c.send(ctx, c.defaultTarget, text, tele.ModeDefault)
	return err
}

func (c *Channel) send(ctx context.Context, target, text string, mode tele.ParseMode) (int, error) {
	to, err := ParseTarget(target)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, errors.New("empty message")
	}

	chat := &tele.Chat{ID: to.ChatID}
	opt := &tele.SendOptions{
		ParseMode:             mode,
		DisableWebPagePreview: true,
		ThreadID:              to.ThreadID,
	}

	first := 0
	for i, chunk := range tgui.Split(text, tgui.MaxMessageRunes) {
		id, err := c.sendOne(ctx, chat, chunk, opt)
		if err != nil {
			if i > 0 {
				return first, fmt.Errorf("chunk %d: %w", i+1, err)
			}
			return 0, err
		}
		if i == 0 {
			first = id
		}
	}
	return first, nil
}

// sendOne runs the blocking telebot call and gives up when ctx ends first.
// The HTTP client timeout bounds the abandoned call.
func (c *Channel) sendOne(ctx context.Context, chat *tele.Chat, text string, opt *tele.SendOptions) (int, error) {
	type result struct {
		id  int
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := c.bot.Send(chat, text, opt)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{id: msg.ID}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.id, r.err
	}
}
