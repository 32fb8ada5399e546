package timetable

import (
	"testing"
	"time"
)

func TestMinuteOfDay(t *testing.T) {
	n, err := MinuteOfDay("06:15")
	if err != nil {
		t.Fatalf("MinuteOfDay failed: %v", err)
	}
	if n != 375 {
		t.Fatalf("expected 375, got %d", n)
	}
	for _, bad := range []string{"", "6:5", "24:00", "12:60", "noon", "12:0"} {
		if _, err := MinuteOfDay(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMinuteOfDayRejectsSingleDigitHour(t *testing.T) {
	// "6:15" aliases "06:15" by minute value but never matches the normalized
	// "HH:MM" tick keys, so only the canonical form may parse.
	for _, bad := range []string{"6:15", "9:00", "6:05"} {
		if _, err := MinuteOfDay(bad); err == nil {
			t.Fatalf("expected error for non-canonical %q", bad)
		}
	}
}

func TestAddMinutes(t *testing.T) {
	got, err := AddMinutes("11:15", 45)
	if err != nil {
		t.Fatalf("AddMinutes failed: %v", err)
	}
	if got != "12:00" {
		t.Fatalf("11:15+45 should be exactly 12:00, got %s", got)
	}

	if _, err := AddMinutes("23:45", 30); err == nil {
		t.Fatal("crossing midnight should be an error")
	}
	if _, err := AddMinutes("00:15", -30); err == nil {
		t.Fatal("going before 00:00 should be an error")
	}
}

func TestFormatClock12(t *testing.T) {
	cases := map[string]string{
		"06:15": "6:15am",
		"12:00": "12:00pm",
		"00:05": "12:05am",
		"16:30": "4:30pm",
	}
	for in, want := range cases {
		if got := FormatClock12(in); got != want {
			t.Fatalf("FormatClock12(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDateKeyUsesLocalCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC+11", 11*3600)
	// 23:30 local on Jan 5 is Jan 5 UTC+11 but Jan 5 12:30 UTC.
	local := time.Date(2026, 1, 5, 23, 30, 0, 0, loc)
	if got := DateKey(local, loc); got != "2026-01-05" {
		t.Fatalf("DateKey in local zone = %s, want 2026-01-05", got)
	}
	// The same instant keyed in UTC lands on the same calendar day here, so use
	// a morning instant where the dates genuinely differ.
	morning := time.Date(2026, 1, 5, 1, 30, 0, 0, loc) // Jan 4 14:30 UTC
	if got := DateKey(morning, loc); got != "2026-01-05" {
		t.Fatalf("DateKey must follow the configured zone, got %s", got)
	}
	if got := DateKey(morning.UTC(), loc); got != "2026-01-05" {
		t.Fatalf("DateKey must be independent of the input's zone, got %s", got)
	}

	day, err := ParseDateKey("2026-01-05", loc)
	if err != nil {
		t.Fatalf("ParseDateKey failed: %v", err)
	}
	if day.Hour() != 0 || day.Location() != loc {
		t.Fatal("ParseDateKey should return local midnight")
	}
}
