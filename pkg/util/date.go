package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006-01",
	"02.01.2006",
	"01/02/2006",
	"01-02-06",
}

// excelEpoch is day zero of the 1900 date system (with the 1900 leap-year bug).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseTime reads an epoch timestamp cell: unix seconds, or milliseconds
// when the value is too large to be seconds. Results are in UTC.
func ParseTime(s string) (time.Time, bool) {
	ts, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	if ts >= 1e11 {
		return time.UnixMilli(ts).UTC(), true
	}
	return time.Unix(ts, 0).UTC(), true
}

// ParseDate parses a calendar date cell. Results are in UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseExcelSerial converts a spreadsheet serial day number to a date.
func ParseExcelSerial(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 1 || f > 2958465 { // 9999-12-31
		return time.Time{}, false
	}
	days := math.Floor(f)
	secs := math.Round((f - days) * 86400)
	return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second), true
}

// IsMonthEnd reports whether t falls on the last day of its month.
func IsMonthEnd(t time.Time) bool {
	return t.AddDate(0, 0, 1).Month() != t.Month()
}

// MonthEnd returns the last day of t's month, keeping the clock time.
func MonthEnd(t time.Time) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	return first.AddDate(0, 1, -1)
}

// NextMonth advances t by one calendar month. Month ends map to month ends and
// other days are clamped to the length of the target month.
func NextMonth(t time.Time) time.Time {
	firstNext := time.Date(t.Year(), t.Month()+1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if IsMonthEnd(t) {
		return MonthEnd(firstNext)
	}
	last := MonthEnd(firstNext).Day()
	day := t.Day()
	if day > last {
		day = last
	}
	return firstNext.AddDate(0, 0, day-1)
}
