package timetable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock supplies "now" so availability and deadline checks are deterministic in tests.
type Clock func() time.Time

var ErrBadClockString = errors.New("invalid clock string")

// MinuteOfDay parses "HH:MM" into minutes since midnight.
func MinuteOfDay(clock string) (int, error) {
	h, m, ok := splitClock(clock)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadClockString, clock)
	}
	return h*60 + m, nil
}

// AddMinutes returns clock shifted by minutes, still as "HH:MM".
// Results that leave the day (before 00:00 or past 24:00) are an error:
// no slot in this system may cross midnight.
func AddMinutes(clock string, minutes int) (string, error) {
	total, err := MinuteOfDay(clock)
	if err != nil {
		return "", err
	}
	total += minutes
	if total < 0 || total > 24*60 {
		return "", fmt.Errorf("%w: %q%+d crosses midnight", ErrBadClockString, clock, minutes)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60), nil
}

// FormatClock12 renders "HH:MM" in the 12-hour display form used by both apps, e.g. "6:15am".
func FormatClock12(clock string) string {
	h, m, ok := splitClock(clock)
	if !ok {
		return clock
	}
	suffix := "am"
	if h >= 12 {
		suffix = "pm"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d%s", h12, m, suffix)
}

// DateKey formats t as "YYYY-MM-DD" in loc. Every date comparison and storage
// key in the platform goes through this function; using the studio's local
// calendar date (never UTC) is what keeps late-evening bookings on the right day.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// ParseDateKey is the inverse of DateKey: midnight of the given day in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", key, loc)
}

// splitClock accepts the canonical "HH:MM" form only. A lone-digit hour like
// "6:15" parses to the same minute as "06:15" but would never match the
// normalized tick keys used for overrides and the exclusion range, so it is
// rejected here rather than silently aliased.
func splitClock(clock string) (int, int, bool) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	return h, m, true
}
