package models

import (
	"fmt"
	"time"

	// Embedded zone database so channel timezones resolve in minimal images.
	_ "time/tzdata"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, NewValidationError("InvalidDate", "date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf returns the calendar date of t in its own location, as midnight UTC.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LocalDate returns the calendar date at instant t as observed in loc.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	return DateOf(t.In(loc))
}

// FormatDate formats a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// LocalInstant combines a calendar date with a wall clock time in loc.
// DST gaps are normalized by time.Date.
func LocalInstant(date time.Time, hour, minute int, loc *time.Location) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, NewValidationError(CodeInvalidTime, "%02d:%02d is not a valid time of day", hour, minute)
	}
	if loc == nil {
		return time.Time{}, fmt.Errorf("nil location")
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc), nil
}
