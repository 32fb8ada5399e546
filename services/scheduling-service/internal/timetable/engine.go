package timetable

import (
	"fmt"
	"time"
)

const DefaultStepMinutes = 15

// Engine answers "which start times are bookable" for one resource against a
// WeekTable. All four former call sites (admin calendar, admin availability,
// member reschedule, circuit roster) share this one implementation and differ
// only in the table and location they construct it with.
type Engine struct {
	week  WeekTable
	loc   *time.Location
	step  int
	clock Clock
}

func NewEngine(week WeekTable, loc *time.Location, clock Clock) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{week: week, loc: loc, step: DefaultStepMinutes, clock: clock}
}

// WithStep overrides the slot granularity (minutes). The platform default is 15.
func (e *Engine) WithStep(step int) *Engine {
	if step > 0 {
		e.step = step
	}
	return e
}

func (e *Engine) Location() *time.Location { return e.loc }

// Now reads the engine's clock, so callers deciding "is this in the past"
// agree with the availability checks on what now is.
func (e *Engine) Now() time.Time { return e.clock() }

// Slot is a candidate start time within one of the day's open blocks.
type Slot struct {
	Start  string
	Period Period
}

// Booking is the subset of a stored session the engine needs for overlap checks.
type Booking struct {
	ID              string
	Date            string // DateKey
	Start           string // "HH:MM"
	DurationMinutes int
}

// Overrides are the per-date exceptions for one date: Blocked removes ticks
// from a normal day, Opened adds ticks to a default-blocked day. Keys are
// "HH:MM" tick starts.
type Overrides struct {
	Blocked map[string]struct{}
	Opened  map[string]struct{}
}

// SlotsForWeekday walks each open block of the weekday in fixed steps and
// emits every candidate start, tagged with its period. Closed weekdays yield nil.
func (e *Engine) SlotsForWeekday(day time.Weekday) []Slot {
	plan, ok := e.week[day]
	if !ok {
		return nil
	}

	var slots []Slot
	appendBlock := func(iv *Interval, period Period) {
		if iv == nil {
			return
		}
		start, err := MinuteOfDay(iv.Start)
		if err != nil {
			return
		}
		end, err := MinuteOfDay(iv.End)
		if err != nil {
			return
		}
		for t := start; t < end; t += e.step {
			slots = append(slots, Slot{Start: clockString(t), Period: period})
		}
	}
	appendBlock(plan.Morning, PeriodMorning)
	appendBlock(plan.Afternoon, PeriodAfternoon)
	return slots
}

// SlotAvailable decides whether a session of durationMinutes starting at start
// on date can be booked. Checks run cheapest-first and each is a hard reject:
//
//  1. the weekday has no standing hours
//  2. the date is a holiday
//  3. per-date overrides (semantics depend on the weekday's DefaultBlocked flag)
//  4. the start is in the past relative to the injected clock
//  5. the interval does not fit inside a single open block
//  6. the interval overlaps an existing booking on the same date
//
// excludeID skips one booking in the overlap scan so a reschedule candidate
// does not conflict with the booking being moved.
func (e *Engine) SlotAvailable(date time.Time, start string, durationMinutes int, bookings []Booking, holidays map[string]struct{}, ov Overrides, excludeID string) bool {
	day := date.In(e.loc)
	plan, ok := e.week[day.Weekday()]
	if !ok {
		return false
	}

	key := DateKey(day, e.loc)
	if _, holiday := holidays[key]; holiday {
		return false
	}

	startMin, err := MinuteOfDay(start)
	if err != nil || durationMinutes <= 0 {
		return false
	}
	endMin := startMin + durationMinutes
	if endMin > 24*60 {
		return false
	}

	if plan.DefaultBlocked {
		// Every tick the session spans must have been explicitly opened.
		for t := startMin; t < endMin; t += e.step {
			if _, opened := ov.Opened[clockString(t)]; !opened {
				return false
			}
		}
	} else {
		for t := startMin; t < endMin; t += e.step {
			if _, blocked := ov.Blocked[clockString(t)]; blocked {
				return false
			}
		}
	}

	now := e.clock().In(e.loc)
	nowKey := DateKey(now, e.loc)
	if key < nowKey {
		return false
	}
	if key == nowKey && startMin < now.Hour()*60+now.Minute() {
		return false
	}

	if !fitsSingleBlock(plan, startMin, endMin) {
		return false
	}

	for _, b := range bookings {
		if b.ID == excludeID || b.Date != key {
			continue
		}
		bStart, err := MinuteOfDay(b.Start)
		if err != nil {
			continue
		}
		bEnd := bStart + b.DurationMinutes
		// Half-open intervals: [startMin,endMin) overlaps [bStart,bEnd).
		if startMin < bEnd && endMin > bStart {
			return false
		}
	}

	return true
}

// AvailableSlots composes the generator and the predicate: the filtered
// sequence of starts a UI can offer for one date.
func (e *Engine) AvailableSlots(date time.Time, durationMinutes int, bookings []Booking, holidays map[string]struct{}, ov Overrides) []Slot {
	var out []Slot
	for _, s := range e.SlotsForWeekday(date.In(e.loc).Weekday()) {
		if e.SlotAvailable(date, s.Start, durationMinutes, bookings, holidays, ov, "") {
			out = append(out, s)
		}
	}
	return out
}

// fitsSingleBlock reports whether [startMin, endMin) starts inside exactly one
// open block and ends at or before that block's end. A session may not span the
// midday gap.
func fitsSingleBlock(plan DayPlan, startMin, endMin int) bool {
	check := func(iv *Interval) bool {
		if iv == nil {
			return false
		}
		blockStart, err := MinuteOfDay(iv.Start)
		if err != nil {
			return false
		}
		blockEnd, err := MinuteOfDay(iv.End)
		if err != nil {
			return false
		}
		return startMin >= blockStart && startMin < blockEnd && endMin <= blockEnd
	}
	return check(plan.Morning) || check(plan.Afternoon)
}

func clockString(minuteOfDay int) string {
	return fmt.Sprintf("%02d:%02d", minuteOfDay/60, minuteOfDay%60)
}
