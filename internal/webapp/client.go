// Package webapp calls the local web application's trigger endpoints.
//
// The endpoints are an opaque RPC surface: a call succeeds when the HTTP
// status is 2xx and a JSON body, if any, does not carry "success": false.
package webapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oliveagle/jsonpath"

	logx "barzin/pkg/logx"
)

const (
	PathSendPriceReport = "/api/telegram/send-price-report"
	PathSendStatus      = "/api/telegram/send-status"
	PathStart           = "/api/telegram/start"
	PathStop            = "/api/telegram/stop"
	PathStatus          = "/api/telegram/status"

	// DefaultRunningExpr selects the liveness flag in the status response.
	DefaultRunningExpr = "$.running"
)

var ErrNotConfigured = errors.New("webapp base_url not configured")

type Config struct {
	BaseURL string
	// Timeout bounds one call. Default 10s.
	Timeout time.Duration
}

type Client struct {
	base string
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With(logx.String("comp", "webapp")),
	}
}

// Response is a decoded endpoint reply. Data is nil for non-JSON bodies.
type Response struct {
	StatusCode int
	Body       []byte
	Data       any
}

// Message returns the "message" field of a JSON object reply.
func (r Response) Message() string {
	m, _ := r.Data.(map[string]any)
	s, _ := m["message"].(string)
	return s
}

// Call GETs path and applies the success rule.
func (c *Client) Call(ctx context.Context, path string) (Response, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return resp, err
	}
	if m, ok := resp.Data.(map[string]any); ok {
		if v, ok := m["success"].(bool); ok && !v {
			msg := resp.Message()
			if msg == "" {
				msg = "success=false"
			}
			return resp, fmt.Errorf("%s: %s", path, msg)
		}
	}
	return resp, nil
}

// Ping GETs path and only requires a 2xx status. Used for keep-alive.
func (c *Client) Ping(ctx context.Context, path string) error {
	_, err := c.get(ctx, path)
	return err
}

func (c *Client) Start(ctx context.Context) error {
	_, err := c.Call(ctx, PathStart)
	return err
}

func (c *Client) Stop(ctx context.Context) error {
	_, err := c.Call(ctx, PathStop)
	return err
}

// Running reads the status endpoint and evaluates expr (JSONPath) against
// it. The selected value must be true, a "true" string or a non-zero number.
// The returned status is the reply's message, if any.
func (c *Client) Running(ctx context.Context, path, expr string) (bool, string, error) {
	if strings.TrimSpace(path) == "" {
		path = PathStatus
	}
	if strings.TrimSpace(expr) == "" {
		expr = DefaultRunningExpr
	}
	pattern, err := jsonpath.Compile(expr)
	if err != nil {
		return false, "", fmt.Errorf("invalid JSONPath %q: %w", expr, err)
	}
	resp, err := c.get(ctx, path)
	if err != nil {
		return false, "", err
	}
	if resp.Data == nil {
		return false, "", fmt.Errorf("%s: response is not JSON", path)
	}
	v, err := pattern.Lookup(resp.Data)
	if err != nil {
		return false, resp.Message(), fmt.Errorf("%s: %s: %w", path, expr, err)
	}
	return truthy(v), resp.Message(), nil
}

func (c *Client) get(ctx context.Context, path string) (Response, error) {
	if c.base == "" {
		return Response{}, ErrNotConfigured
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", path, err)
	}
	defer res.Body.Close()

	// Read response (limit to 1MB)
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Response{StatusCode: res.StatusCode}, fmt.Errorf("%s: read: %w", path, err)
	}
	out := Response{StatusCode: res.StatusCode, Body: body}
	var data any
	if json.Unmarshal(body, &data) == nil {
		out.Data = data
	}

	c.log.Debug("webapp call",
		logx.String("path", path),
		logx.Int("status", res.StatusCode),
		logx.Duration("took", time.Since(start)),
	)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return out, fmt.Errorf("%s: status %d", path, res.StatusCode)
	}
	return out, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	case float64:
		return x != 0
	case []any:
		// filter expressions yield slices
		return len(x) > 0 && truthy(x[0])
	default:
		return false
	}
}
