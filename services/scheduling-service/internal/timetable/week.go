package timetable

import "time"

type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
)

// Interval is an open block of the day in "HH:MM" clock strings, half-open [Start, End).
type Interval struct {
	Start string
	End   string
}

// DayPlan describes one weekday's standing hours. Either block may be nil
// (closed). DefaultBlocked flips the override semantics for that weekday:
// a default-blocked day offers nothing unless individual ticks are opened,
// where a normal day offers everything except ticks that are blocked.
type DayPlan struct {
	Morning        *Interval
	Afternoon      *Interval
	DefaultBlocked bool
}

// WeekTable is the standing weekly schedule. Weekdays with no entry are closed.
type WeekTable map[time.Weekday]DayPlan

// TrainerWeek is the one-to-one session timetable: early mornings plus
// after-work afternoons, Friday afternoons held back unless explicitly opened.
func TrainerWeek() WeekTable {
	return WeekTable{
		time.Monday: {
			Morning:   &Interval{Start: "06:15", End: "12:00"},
			Afternoon: &Interval{Start: "16:00", End: "20:00"},
		},
		time.Tuesday: {
			Morning:   &Interval{Start: "06:15", End: "12:00"},
			Afternoon: &Interval{Start: "16:00", End: "20:00"},
		},
		time.Wednesday: {
			Morning:   &Interval{Start: "06:15", End: "12:00"},
			Afternoon: &Interval{Start: "16:00", End: "20:00"},
		},
		time.Thursday: {
			Morning:   &Interval{Start: "06:15", End: "12:00"},
			Afternoon: &Interval{Start: "16:00", End: "20:00"},
		},
		time.Friday: {
			Morning:        &Interval{Start: "06:15", End: "12:00"},
			Afternoon:      &Interval{Start: "16:00", End: "18:00"},
			DefaultBlocked: true,
		},
	}
}
