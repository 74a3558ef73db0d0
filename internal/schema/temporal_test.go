package schema

import (
	"testing"
	"time"
)

func TestIsWeekendAllDays(t *testing.T) {
	for day := 0; day < 7; day++ {
		want := day == 5 || day == 6
		if got := IsWeekend(day); got != want {
			t.Errorf("IsWeekend(%d) = %v, want %v", day, got, want)
		}
	}
}

func TestHourOfDayMonotonic(t *testing.T) {
	for hour := 0; hour < 24; hour++ {
		prev := HourOfDay(hour, 0)
		if prev != float64(hour) {
			t.Errorf("HourOfDay(%d, 0) = %v", hour, prev)
		}
		for minute := 1; minute < 60; minute++ {
			cur := HourOfDay(hour, minute)
			if cur < prev {
				t.Fatalf("HourOfDay(%d, %d) = %v decreased from %v", hour, minute, cur, prev)
			}
			if cur >= float64(hour+1) {
				t.Fatalf("HourOfDay(%d, %d) = %v spilled into next hour", hour, minute, cur)
			}
			prev = cur
		}
	}
}

func TestDayOfWeekMondayBased(t *testing.T) {
	// 2026-10-19 is a Monday.
	monday := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		if got := DayOfWeek(monday.AddDate(0, 0, i)); got != i {
			t.Errorf("DayOfWeek(+%d days) = %d, want %d", i, got, i)
		}
	}
}

func TestParseDayName(t *testing.T) {
	names := DayNames()
	for i, name := range names {
		got, err := ParseDayName(name)
		if err != nil || got != i {
			t.Errorf("ParseDayName(%q) = %d, %v", name, got, err)
		}
	}
	if _, err := ParseDayName("funday"); err == nil {
		t.Error("expected error for unknown day")
	}
	if _, err := ParseDayName("mo"); err == nil {
		t.Error("expected error for two-letter day")
	}
}

func TestParseClock(t *testing.T) {
	h, err := ParseClock("13:30")
	if err != nil || h != 13.5 {
		t.Errorf("ParseClock(13:30) = %v, %v", h, err)
	}
	if _, err := ParseClock("1:3"); err == nil {
		t.Error("expected error for malformed clock")
	}
}
