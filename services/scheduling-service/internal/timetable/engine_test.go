package timetable

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// monday is a Monday well in the future of the fixed clock used below.
var (
	testLoc  = time.UTC
	monday   = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	past     = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
)

func testEngine() *Engine {
	return NewEngine(TrainerWeek(), testLoc, fixedClock(past))
}

func TestSlotsForWeekday_MorningOnly(t *testing.T) {
	week := WeekTable{
		time.Tuesday: {Morning: &Interval{Start: "06:15", End: "09:00"}},
	}
	e := NewEngine(week, testLoc, fixedClock(past))

	slots := e.SlotsForWeekday(time.Tuesday)
	if len(slots) == 0 {
		t.Fatal("expected slots for a morning-only weekday")
	}
	prev := -1
	for _, s := range slots {
		if s.Period != PeriodMorning {
			t.Fatalf("morning-only weekday emitted period %q at %s", s.Period, s.Start)
		}
		min, err := MinuteOfDay(s.Start)
		if err != nil {
			t.Fatalf("bad slot start %q: %v", s.Start, err)
		}
		if prev >= 0 && min-prev != 15 {
			t.Fatalf("consecutive slots %d and %d are not 15 minutes apart", prev, min)
		}
		prev = min
	}
	if slots[0].Start != "06:15" {
		t.Fatalf("first slot should be 06:15, got %s", slots[0].Start)
	}
	if last := slots[len(slots)-1].Start; last != "08:45" {
		t.Fatalf("last slot should be 08:45 (end exclusive), got %s", last)
	}
}

func TestEngineNowReadsInjectedClock(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC)
	e := NewEngine(TrainerWeek(), testLoc, fixedClock(at))
	if !e.Now().Equal(at) {
		t.Fatalf("Now() = %v, want the injected instant %v", e.Now(), at)
	}
}

func TestSlotsForWeekday_ClosedDay(t *testing.T) {
	e := testEngine()
	if slots := e.SlotsForWeekday(time.Saturday); slots != nil {
		t.Fatalf("expected no slots on a closed weekday, got %d", len(slots))
	}
}

func TestSlotAvailable_WeekendRejected(t *testing.T) {
	e := testEngine()
	if e.SlotAvailable(saturday, "09:00", 45, nil, nil, Overrides{}, "") {
		t.Fatal("weekend slot should be rejected")
	}
}

func TestSlotAvailable_Holiday(t *testing.T) {
	e := testEngine()
	holidays := map[string]struct{}{DateKey(monday, testLoc): {}}

	if e.SlotAvailable(monday, "09:00", 45, nil, holidays, Overrides{}, "") {
		t.Fatal("holiday slot should be rejected")
	}
	if got := e.AvailableSlots(monday, 45, nil, holidays, Overrides{}); len(got) != 0 {
		t.Fatalf("holiday should blank the whole day, got %d slots", len(got))
	}
}

func TestSlotAvailable_PastTime(t *testing.T) {
	// Clock mid-morning on the candidate day itself.
	now := time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC)
	e := NewEngine(TrainerWeek(), testLoc, fixedClock(now))

	if e.SlotAvailable(monday, "09:30", 45, nil, nil, Overrides{}, "") {
		t.Fatal("slot starting before now should be rejected")
	}
	if !e.SlotAvailable(monday, "09:45", 45, nil, nil, Overrides{}, "") {
		t.Fatal("slot starting after now should be accepted")
	}
	thursday := time.Date(2026, 2, 26, 0, 0, 0, 0, time.UTC)
	if e.SlotAvailable(thursday, "10:00", 45, nil, nil, Overrides{}, "") {
		t.Fatal("earlier date should be rejected at the date level")
	}
}

func TestSlotAvailable_BlockContainment(t *testing.T) {
	e := testEngine()

	// Monday morning runs 06:15-12:00. A 45-minute session at 11:30 would end
	// 12:15, past the block end; 11:00 ends 11:45 and fits.
	if e.SlotAvailable(monday, "11:30", 45, nil, nil, Overrides{}, "") {
		t.Fatal("11:30+45m overruns the morning block and should be rejected")
	}
	if !e.SlotAvailable(monday, "11:00", 45, nil, nil, Overrides{}, "") {
		t.Fatal("11:00+45m fits the morning block and should be accepted")
	}
	// Ending exactly on the block boundary is allowed.
	if !e.SlotAvailable(monday, "11:15", 45, nil, nil, Overrides{}, "") {
		t.Fatal("session ending exactly at 12:00 should be accepted")
	}
	// Spanning the midday gap is not.
	if e.SlotAvailable(monday, "11:45", 300, nil, nil, Overrides{}, "") {
		t.Fatal("session spanning the midday gap should be rejected")
	}
	// Starting inside the gap is not.
	if e.SlotAvailable(monday, "13:00", 45, nil, nil, Overrides{}, "") {
		t.Fatal("session starting between blocks should be rejected")
	}
}

func TestSlotAvailable_OverlapHalfOpen(t *testing.T) {
	e := testEngine()
	key := DateKey(monday, testLoc)
	existing := []Booking{
		{ID: "a", Date: key, Start: "09:00", DurationMinutes: 45},
		{ID: "b", Date: key, Start: "09:45", DurationMinutes: 45},
	}

	if e.SlotAvailable(monday, "09:30", 45, existing, nil, Overrides{}, "") {
		t.Fatal("09:30+45m overlaps both existing sessions and should be rejected")
	}
	if !e.SlotAvailable(monday, "10:30", 45, existing, nil, Overrides{}, "") {
		t.Fatal("10:30+45m touches 10:30 end boundary only and should be accepted")
	}
	// Back-to-back is fine under half-open semantics.
	if !e.SlotAvailable(monday, "08:15", 45, existing, nil, Overrides{}, "") {
		t.Fatal("session ending exactly when the next starts should be accepted")
	}
	// Excluding a booking lets it be rebooked over itself.
	if !e.SlotAvailable(monday, "09:00", 45, existing, nil, Overrides{}, "a") {
		t.Fatal("candidate excluding its own booking should be accepted")
	}
	// Bookings on another date never conflict.
	other := []Booking{{ID: "c", Date: "2026-03-03", Start: "09:00", DurationMinutes: 45}}
	if !e.SlotAvailable(monday, "09:00", 45, other, nil, Overrides{}, "") {
		t.Fatal("booking on a different date should not block")
	}
}

func TestSlotAvailable_MutualExclusion(t *testing.T) {
	// If two candidates both pass against an empty day, booking one must
	// reject the other iff their intervals intersect half-open.
	e := testEngine()
	key := DateKey(monday, testLoc)

	cases := []struct {
		aStart, bStart string
		overlap        bool
	}{
		{"09:00", "09:30", true},
		{"09:00", "09:45", false},
		{"06:15", "07:00", false},
		{"10:00", "10:30", true},
	}
	for _, tc := range cases {
		if !e.SlotAvailable(monday, tc.aStart, 45, nil, nil, Overrides{}, "") {
			t.Fatalf("%s should be free on an empty day", tc.aStart)
		}
		if !e.SlotAvailable(monday, tc.bStart, 45, nil, nil, Overrides{}, "") {
			t.Fatalf("%s should be free on an empty day", tc.bStart)
		}
		booked := []Booking{{ID: "x", Date: key, Start: tc.aStart, DurationMinutes: 45}}
		got := e.SlotAvailable(monday, tc.bStart, 45, booked, nil, Overrides{}, "")
		if got == tc.overlap {
			t.Fatalf("after booking %s, availability of %s = %v, want %v", tc.aStart, tc.bStart, got, !tc.overlap)
		}
	}
}

func TestSlotAvailable_BlockedOverrides(t *testing.T) {
	e := testEngine()
	ov := Overrides{Blocked: map[string]struct{}{"09:30": {}}}

	if e.SlotAvailable(monday, "09:30", 45, nil, nil, ov, "") {
		t.Fatal("session starting on a blocked tick should be rejected")
	}
	if e.SlotAvailable(monday, "09:00", 45, nil, nil, ov, "") {
		t.Fatal("session spanning a blocked tick should be rejected")
	}
	if !e.SlotAvailable(monday, "09:45", 45, nil, nil, ov, "") {
		t.Fatal("session clear of the blocked tick should be accepted")
	}
}

func TestSlotAvailable_DefaultBlockedRequiresEveryTickOpened(t *testing.T) {
	// Friday afternoon is default-blocked in the trainer week.
	friday := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	e := testEngine()

	partially := Overrides{Opened: map[string]struct{}{"16:00": {}, "16:15": {}}}
	if e.SlotAvailable(friday, "16:00", 45, nil, nil, partially, "") {
		t.Fatal("45m spans three ticks; opening only two must keep it unavailable")
	}

	fully := Overrides{Opened: map[string]struct{}{"16:00": {}, "16:15": {}, "16:30": {}}}
	if !e.SlotAvailable(friday, "16:00", 45, nil, nil, fully, "") {
		t.Fatal("every spanned tick opened: slot should be available")
	}
	// Opened ticks do not bypass block containment.
	if e.SlotAvailable(friday, "17:45", 45, nil, nil, Overrides{Opened: map[string]struct{}{"17:45": {}, "18:00": {}, "18:15": {}}}, "") {
		t.Fatal("opened ticks past the block end must still be rejected")
	}
}

func TestAvailableSlots_Composition(t *testing.T) {
	e := testEngine()
	key := DateKey(monday, testLoc)
	booked := []Booking{{ID: "a", Date: key, Start: "06:15", DurationMinutes: 45}}

	slots := e.AvailableSlots(monday, 45, booked, nil, Overrides{})
	for _, s := range slots {
		if s.Start == "06:15" || s.Start == "06:30" || s.Start == "06:45" {
			t.Fatalf("slot %s overlaps the existing booking", s.Start)
		}
	}
	if len(slots) == 0 {
		t.Fatal("expected remaining availability on a mostly-empty day")
	}
	if slots[0].Start != "07:00" {
		t.Fatalf("first free slot should be 07:00, got %s", slots[0].Start)
	}
}
