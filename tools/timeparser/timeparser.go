package timeparser

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used by reports
const DateLayout = "2006-01-02"

// ClockLayout is the time-of-day format stored on logs
const ClockLayout = "15:04:05"

var (
	// OpenStart stands in for "since the first log"
	OpenStart = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	// OpenEnd stands in for "until now"
	OpenEnd = time.Date(3025, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// ParseReportDate parses a YYYY-MM-DD date as midnight UTC
func ParseReportDate(dateStr string) (time.Time, error) {
	t, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", dateStr, err)
	}
	return t, nil
}

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// IsOpenStart reports whether t is the open lower bound
func IsOpenStart(t time.Time) bool {
	return sameDay(t, OpenStart)
}

// IsOpenEnd reports whether t is the open upper bound
func IsOpenEnd(t time.Time) bool {
	return sameDay(t, OpenEnd)
}

// PeriodLabels renders the report bounds for display, naming the open
// bounds instead of printing the sentinel dates
func PeriodLabels(from, to time.Time) (string, string) {
	fromLabel := FormatDate(from)
	if IsOpenStart(from) {
		fromLabel = "first log"
	}
	toLabel := FormatDate(to)
	if IsOpenEnd(to) {
		toLabel = "now"
	}
	return fromLabel, toLabel
}

// SplitLocal splits an instant into the calendar day (midnight UTC) and
// the HH:MM:SS clock time as observed in loc
func SplitLocal(t time.Time, loc *time.Location) (time.Time, string) {
	local := t.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return day, local.Format(ClockLayout)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
