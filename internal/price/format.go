package price

import (
	"fmt"
	"strings"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

// missingYearSuffix is appended to chart labels that carry no year. IEX
// drops the year from labels of the current year; the data this pipeline
// was built for ends in 2018.
const missingYearSuffix = ", 18"

var labelLayouts = []string{"Jan 2, 06", "Jan 2, 2006"}

// RepairLabel appends the fixed year suffix to labels with fewer than
// three space-separated tokens. Labels with a year are returned unchanged.
func RepairLabel(label string) string {
	if len(strings.Fields(label)) >= 3 {
		return label
	}
	return label + missingYearSuffix
}

// ParseLabel parses a repaired chart label such as "Jan 5, 18".
func ParseLabel(label string) (time.Time, error) {
	for _, layout := range labelLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised chart label %q", label)
}

// FormatChart converts raw chart records into a Series restricted to
// [from, to], both ends inclusive. Order is preserved. A range with no
// records yields an empty series.
func FormatChart(points []scraper.ChartPoint, from, to time.Time) (Series, error) {
	series := make(Series, 0, len(points))
	for _, p := range points {
		t, err := ParseLabel(RepairLabel(p.Label))
		if err != nil {
			return nil, err
		}
		if t.Before(from) || t.After(to) {
			continue
		}
		series = append(series, Point{Date: t, Close: p.Close})
	}
	return series, nil
}
