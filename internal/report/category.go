package report

import (
	"fmt"
	"strings"
)

// Category selects the message template. It never decides the content.
type Category string

const (
	PriceReport  Category = "price-report"
	SystemStatus Category = "system-status"
	Test         Category = "test"
	Alert        Category = "alert"
	Restart      Category = "restart"
	Boot         Category = "boot"
	Shutdown     Category = "shutdown"
	SystemError  Category = "system-error"
)

type template struct {
	emoji string
	title string
}

var templates = map[Category]template{
	PriceReport:  {"💰", "Price Report"},
	SystemStatus: {"🤖", "System Status"},
	Test:         {"🤖", "Test Message"},
	Alert:        {"🚨", "Alert"},
	Restart:      {"🔄", "Service Restarted"},
	Boot:         {"🟢", "System Started"},
	Shutdown:     {"🔴", "System Shutting Down"},
	SystemError:  {"⚠️", "Error"},
}

func (c Category) Valid() bool {
	_, ok := templates[c]
	return ok
}

func (c Category) String() string { return string(c) }

// ParseCategory accepts the canonical names plus underscore spellings
// ("price_report").
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}
