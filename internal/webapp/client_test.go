package webapp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "barzin/pkg/logx"
)

func newServer(t *testing.T, routes map[string]func(w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestCallSuccessRule(t *testing.T) {
	t.Parallel()
	srv := newServer(t, map[string]func(http.ResponseWriter){
		PathSendPriceReport: reply(200, `{"success":true,"message":"sent"}`),
		PathSendStatus:      reply(200, `{"success":false,"message":"bot offline"}`),
		PathStart:           reply(500, `{"success":true}`),
		"/":                 reply(200, `<html>ok</html>`),
	})
	c := New(Config{BaseURL: srv.URL + "/"}, logx.Nop())
	ctx := context.Background()

	if resp, err := c.Call(ctx, PathSendPriceReport); err != nil || resp.Message() != "sent" {
		t.Fatalf("Call(price) = %q, %v", resp.Message(), err)
	}
	if _, err := c.Call(ctx, PathSendStatus); err == nil || !strings.Contains(err.Error(), "bot offline") {
		t.Fatalf("Call(status) err = %v, want bot offline", err)
	}
	if err := c.Start(ctx); err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("Start err = %v, want status 500", err)
	}
	if _, err := c.Call(ctx, "/"); err != nil {
		t.Fatalf("non-JSON 2xx should succeed: %v", err)
	}
	if err := c.Ping(ctx, "/missing"); err == nil {
		t.Fatal("Ping of 404 should fail")
	}
}

func TestRunning(t *testing.T) {
	t.Parallel()
	srv := newServer(t, map[string]func(http.ResponseWriter){
		PathStatus:      reply(200, `{"running":true,"active":true,"message":"scheduler active"}`),
		"/down":         reply(200, `{"running":false}`),
		"/nested":       reply(200, `{"scheduler":{"state":"true"}}`),
		"/not-json":     reply(200, `ok`),
		"/missing-flag": reply(200, `{"active":true}`),
	})
	c := New(Config{BaseURL: srv.URL}, logx.Nop())
	ctx := context.Background()

	tests := []struct {
		path, expr string
		want       bool
		wantErr    bool
	}{
		{path: "", expr: "", want: true},
		{path: "/down", want: false},
		{path: "/nested", expr: "$.scheduler.state", want: true},
		{path: "/not-json", wantErr: true},
		{path: "/missing-flag", wantErr: true},
	}
	for _, tt := range tests {
		got, _, err := c.Running(ctx, tt.path, tt.expr)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Running(%q) err = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("Running(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	_, status, _ := c.Running(ctx, PathStatus, DefaultRunningExpr)
	if status != "scheduler active" {
		t.Fatalf("status = %q", status)
	}
}

func TestNotConfigured(t *testing.T) {
	t.Parallel()
	if err := New(Config{}, logx.Nop()).Ping(context.Background(), "/"); err != ErrNotConfigured {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
