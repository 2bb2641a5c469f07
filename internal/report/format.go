package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// FormatPrice renders v with 2 decimals and thousands separators when v >= 1,
// 6 decimals down to 0.01 and 8 decimals below that.
func FormatPrice(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1:
		return humanize.FormatFloat("#,###.##", v)
	case abs >= 0.01:
		return fmt.Sprintf("%.6f", v)
	default:
		return fmt.Sprintf("%.8f", v)
	}
}

// FormatChange renders a percentage with an explicit sign: "+3.20%".
func FormatChange(pct float64) string {
	s := fmt.Sprintf("%+.2f%%", pct)
	if strings.HasPrefix(s, "-0.00") {
		return "+0.00%"
	}
	return s
}

// changeMarker is green for flat or rising, red for falling.
func changeMarker(pct float64) string {
	if pct < 0 {
		return "🔴"
	}
	return "🟢"
}
