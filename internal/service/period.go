package service

import (
	"strings"
	"time"

	"github.com/pesio-ai/be-ops-indicators/internal/errors"
)

const periodLayout = "2006-01-02"

// ParsePeriod accepts "YYYY-MM" or "YYYY-MM-DD" and returns the first day of
// that month in UTC.
func ParsePeriod(raw string) (time.Time, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return time.Time{}, errors.InvalidInput("period", "period is required (YYYY-MM or YYYY-MM-DD)")
	}

	layout := periodLayout
	if len(p) == len("2006-01") {
		layout = "2006-01"
	}
	t, err := time.Parse(layout, p)
	if err != nil {
		return time.Time{}, errors.InvalidInput("period", "invalid period, expected YYYY-MM or YYYY-MM-DD")
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

// FormatPeriod renders a stored period as YYYY-MM-DD.
func FormatPeriod(t time.Time) string {
	return t.UTC().Format(periodLayout)
}
