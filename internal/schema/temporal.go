package schema

import (
	"errors"
	"strings"
	"time"
)

// Parse errors never echo the input; they end up in validation messages.
var (
	errUnknownDay  = errors.New("unknown day")
	errClockFormat = errors.New("expected HH:MM")
)

var dayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DayNames returns the display names indexed by day_of_week.
func DayNames() []string {
	names := make([]string, len(dayNames))
	for i, n := range dayNames {
		names[i] = strings.ToUpper(n[:1]) + n[1:]
	}
	return names
}

// IsWeekend reports whether day (Monday=0) is Saturday or Sunday.
func IsWeekend(day int) bool {
	return day == 5 || day == 6
}

// HourOfDay converts a clock time to fractional hours.
func HourOfDay(hour, minute int) float64 {
	return float64(hour) + float64(minute)/60.0
}

// DayOfWeek returns the Monday-based index of t's weekday.
func DayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ParseDayName accepts full or three-letter day names in any case.
func ParseDayName(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, errUnknownDay
	}
	for i, name := range dayNames {
		if s == name || s == name[:3] {
			return i, nil
		}
	}
	return 0, errUnknownDay
}

// ParseClock parses "HH:MM" into fractional hours.
func ParseClock(s string) (float64, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, errClockFormat
	}
	return HourOfDay(t.Hour(), t.Minute()), nil
}
