package report

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormatPrice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{82500.0, "82,500.00"},
		{1234567.891, "1,234,567.89"},
		{1, "1.00"},
		{165.456, "165.46"},
		{0.52, "0.520000"},
		{0.0123456, "0.012346"},
		{0.00001234, "0.00001234"},
		{0, "0.00000000"},
	}
	for _, tt := range tests {
		if got := FormatPrice(tt.in); got != tt.want {
			t.Fatalf("FormatPrice(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatChange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float64
		want string
	}{
		{-0.5, "-0.50%"},
		{3.2, "+3.20%"},
		{0, "+0.00%"},
		{-0.001, "+0.00%"},
		{12.345, "+12.35%"},
	}
	for _, tt := range tests {
		if got := FormatChange(tt.in); got != tt.want {
			t.Fatalf("FormatChange(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Category{
		"price-report":   PriceReport,
		"price_report":   PriceReport,
		" System-Status": SystemStatus,
		"boot":           Boot,
	} {
		got, err := ParseCategory(in)
		if err != nil || got != want {
			t.Fatalf("ParseCategory(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseCategory("newsletter"); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func fixedRenderer() *Renderer {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return NewRenderer(func() time.Time { return at }, time.UTC)
}

func TestRenderFrame(t *testing.T) {
	t.Parallel()
	got := fixedRenderer().Render(Test, Text("System is <up>."))
	want := strings.Join([]string{
		"🤖 <b>Crypto Barzin - Test Message</b>",
		Separator,
		"",
		"System is &lt;up&gt;.",
		"",
		"⏰ <b>Time:</b> 2024-05-01 10:00:00",
	}, "\n")
	if got != want {
		t.Fatalf("Render =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderCategoryPicksTitleOnly(t *testing.T) {
	t.Parallel()
	r := fixedRenderer()
	body := Text("same body")
	a := r.Render(Alert, body)
	b := r.Render(Boot, body)
	if a == b {
		t.Fatal("different categories rendered identically")
	}
	for _, s := range []string{a, b} {
		if !strings.Contains(s, "same body") {
			t.Fatalf("body missing: %q", s)
		}
	}
	if !strings.HasPrefix(a, "🚨 <b>Crypto Barzin - Alert</b>") {
		t.Fatalf("alert title = %q", strings.SplitN(a, "\n", 2)[0])
	}
}

func TestPriceTable(t *testing.T) {
	t.Parallel()
	got := PriceTable([]Quote{
		{Symbol: "BTC", Name: "Bitcoin", Price: 82500, Change24h: 1.25},
		{Symbol: "XRP", Price: 0.52, Change24h: -0.5},
	}, true).String()

	lines := strings.Split(got, "\n")
	if lines[0] != "🟢 <b>BTC</b> (Bitcoin) <code>$82,500.00</code> (+1.25%)" {
		t.Fatalf("line 0 = %q", lines[0])
	}
	if lines[1] != "🔴 <b>XRP</b> <code>$0.520000</code> (-0.50%)" {
		t.Fatalf("line 1 = %q", lines[1])
	}
	if !strings.Contains(got, "Simulated prices") {
		t.Fatalf("simulated marker missing: %q", got)
	}
}

func TestStatusBody(t *testing.T) {
	t.Parallel()
	last := time.Date(2024, 5, 1, 9, 50, 0, 0, time.UTC)
	got := StatusBody(Status{
		Role:   "notifier",
		Host:   "box",
		Uptime: 90*time.Minute + 400*time.Millisecond,
		Tasks: []TaskStatus{
			{Name: "system-status", Runs: 1},
			{Name: "price-report", Runs: 6, Failures: 1, LastRun: last, LastErr: "timeout <10s>"},
		},
	}).String()

	for _, want := range []string{
		"• <b>Role</b>: notifier",
		"• <b>Uptime</b>: 1h30m0s",
		"price-report: runs=6 failures=1 last=2024-05-01 09:50:00",
		"<i>timeout &lt;10s&gt;</i>",
		"system-status: runs=1 failures=0 last=never",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("StatusBody missing %q in:\n%s", want, got)
		}
	}
	if strings.Index(got, "price-report") > strings.Index(got, "system-status") {
		t.Fatal("tasks not sorted by name")
	}
}

func TestErrorBodyEscapes(t *testing.T) {
	t.Parallel()
	got := ErrorBody("notifier", errors.New("bad <tag>")).String()
	if !strings.Contains(got, "<code>bad &lt;tag&gt;</code>") {
		t.Fatalf("ErrorBody = %q", got)
	}
}
