// Package calendar maps instants onto Tehran calendar days, the unit the
// signal ledger and the nightly settlement are partitioned by.
package calendar

import (
	"fmt"
	"time"
)

// Tehran is the fixed UTC+3:30 zone. Iran has not observed DST since 2022.
var Tehran = time.FixedZone("IRST", 3*3600+30*60)

// DayLayout is the ledger day key format.
const DayLayout = "2006-01-02"

// Manual closes are stamped at this Tehran wall-clock time.
const (
	ManualCloseHour   = 23
	ManualCloseMinute = 59
)

// DayKey returns the Tehran date of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.In(Tehran).Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD day key as a Tehran date (midnight).
func ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, day, Tehran)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: bad day %q: %w", day, err)
	}
	return t, nil
}

// DayBounds returns [start, end) of a Tehran day.
func DayBounds(day string) (start, end time.Time, err error) {
	start, err = ParseDay(day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

// ManualCloseTime returns 23:59 Tehran on day.
func ManualCloseTime(day string) (time.Time, error) {
	start, err := ParseDay(day)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(ManualCloseHour*time.Hour + ManualCloseMinute*time.Minute), nil
}

// Yesterday returns the Tehran day key before now's Tehran day.
func Yesterday(now time.Time) string {
	t := now.In(Tehran)
	return time.Date(t.Year(), t.Month(), t.Day()-1, 0, 0, 0, 0, Tehran).Format(DayLayout)
}

// NextRun returns the next Tehran wall-clock hour:minute strictly after now.
func NextRun(now time.Time, hour, minute int) time.Time {
	t := now.In(Tehran)
	run := time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, Tehran)
	if !run.After(t) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// FormatTehran renders t as "YYYY-MM-DD HH:MM:SS" Tehran time, or "" for the
// zero time.
func FormatTehran(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(Tehran).Format("2006-01-02 15:04:05")
}

// ParseTehran parses FormatTehran output. An empty string yields the zero time.
func ParseTehran(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02 15:04:05", s, Tehran)
}
