package studyplan

import (
	"fmt"
	"strings"
	"time"
)

const clockLayout = "15:04"

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// MinutesBetween returns end minus start in minutes. The result is zero or
// negative for empty or inverted windows, and zero if either side fails to parse.
func MinutesBetween(end, start string) int {
	e, err := ParseClock(end)
	if err != nil {
		return 0
	}
	s, err := ParseClock(start)
	if err != nil {
		return 0
	}
	return e - s
}

// WeekDate returns the calendar date of day (1=Monday) in the week anchored
// at weekStart, at midnight in weekStart's location.
func WeekDate(weekStart time.Time, day int) time.Time {
	y, m, d := weekStart.Date()
	return time.Date(y, m, d+day-1, 0, 0, 0, 0, weekStart.Location())
}

// WeekStartOf returns midnight on the Monday of t's week.
func WeekStartOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}
