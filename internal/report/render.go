// Package report renders notification messages for Telegram HTML parse mode.
//
// Every message shares one frame: a title line chosen by category, a
// separator, the category body and a trailing timestamp line.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"barzin/pkg/tgui"
)

const (
	Brand     = "Crypto Barzin"
	Separator = "━━━━━━━━━━━━━━━━━━"

	timeLayout = "2006-01-02 15:04:05"
)

type Renderer struct {
	now func() time.Time
	loc *time.Location
}

// NewRenderer returns a renderer stamping messages with now() in loc.
// Nil arguments use time.Now and time.Local.
func NewRenderer(now func() time.Time, loc *time.Location) *Renderer {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{now: now, loc: loc}
}

// Render frames body with the category's title and a timestamp line.
func (r *Renderer) Render(c Category, body tgui.H) string {
	tpl, ok := templates[c]
	if !ok {
		tpl = template{emoji: "📣", title: string(c)}
	}
	b := tgui.NewBuilder().
		Title(tpl.emoji, Brand+" - "+tpl.title).
		RawLine(Separator).
		Blank()
	if strings.TrimSpace(body.String()) != "" {
		b.RawLine(body.String()).Blank()
	}
	b.RawLine("⏰ " + tgui.B("Time:").String() + " " + tgui.Esc(r.now().In(r.loc).Format(timeLayout)).String())
	return b.Build()
}

// Text escapes free-form text for use as a body.
func Text(s string) tgui.H {
	return tgui.Esc(strings.TrimSpace(s))
}

// Quote is one row of a price report.
type Quote struct {
	Symbol    string
	Name      string
	Price     float64
	Change24h float64
}

// PriceTable renders one line per quote in the given order:
//
//	🟢 <b>BTC</b> <code>$82,500.00</code> (+1.25%)
func PriceTable(quotes []Quote, simulated bool) tgui.H {
	lines := make([]tgui.H, 0, len(quotes)+2)
	for _, q := range quotes {
		label := tgui.B(q.Symbol).String()
		if q.Name != "" && !strings.EqualFold(q.Name, q.Symbol) {
			label += " " + tgui.Esc("("+q.Name+")").String()
		}
		lines = append(lines, tgui.Raw(fmt.Sprintf("%s %s %s (%s)",
			changeMarker(q.Change24h),
			label,
			tgui.Code("$"+FormatPrice(q.Price)),
			tgui.Esc(FormatChange(q.Change24h)),
		)))
	}
	if len(quotes) == 0 {
		lines = append(lines, tgui.I("No market data available."))
	}
	if simulated {
		lines = append(lines, "", tgui.I("Simulated prices: market source unavailable."))
	}
	return joinLines(lines)
}

// TaskStatus is the per-task line of a system status report.
type TaskStatus struct {
	Name     string
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  string
}

// Status is the content of a system-status message.
type Status struct {
	Role   string
	Host   string
	PID    int
	Uptime time.Duration
	Tasks  []TaskStatus
	Note   string
}

// HostStatus fills Host and PID from the running process.
func HostStatus(role string, uptime time.Duration) Status {
	host, _ := os.Hostname()
	return Status{Role: role, Host: host, PID: os.Getpid(), Uptime: uptime}
}

// StatusBody renders a system status summary. Tasks are listed by name.
func StatusBody(s Status) tgui.H {
	b := tgui.NewBuilder()
	if s.Note != "" {
		b.Line(s.Note).Blank()
	}
	if s.Role != "" {
		b.KV("Role", s.Role)
	}
	if s.Host != "" {
		b.KV("Host", s.Host)
	}
	if s.PID > 0 {
		b.KV("PID", fmt.Sprint(s.PID))
	}
	if s.Uptime > 0 {
		b.KV("Uptime", s.Uptime.Round(time.Second).String())
	}

	if len(s.Tasks) > 0 {
		tasks := append([]TaskStatus(nil), s.Tasks...)
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })

		b.Blank().Section("Tasks")
		for _, t := range tasks {
			last := "never"
			if !t.LastRun.IsZero() {
				last = t.LastRun.Format(timeLayout)
			}
			line := fmt.Sprintf("%s: runs=%d failures=%d last=%s", t.Name, t.Runs, t.Failures, last)
			b.Line(line)
			if t.LastErr != "" {
				b.RawLine("  " + tgui.I(tgui.TruncRunes(t.LastErr, 200)).String())
			}
		}
	}
	return tgui.Raw(b.Build())
}

// ErrorBody renders the loop-fatal failure notice.
func ErrorBody(role string, err error) tgui.H {
	b := tgui.NewBuilder().
		Line("An unrecoverable error stopped the service. Check the logs.")
	if role != "" {
		b.KV("Role", role)
	}
	if err != nil {
		b.Blank().Code(tgui.TruncRunes(err.Error(), 1000))
	}
	return tgui.Raw(b.Build())
}

// RestartBody renders the watchdog restart notice.
func RestartBody(role, status string) tgui.H {
	b := tgui.NewBuilder().
		Line("The watchdog restarted a stopped service.").
		KV("Role", role)
	if status != "" {
		b.KV("Status", status)
	}
	return tgui.Raw(b.Build())
}

func joinLines(lines []tgui.H) tgui.H {
	ss := make([]string, len(lines))
	for i, l := range lines {
		ss[i] = l.String()
	}
	return tgui.Raw(strings.Join(ss, "\n"))
}
