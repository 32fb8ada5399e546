package model

import "time"

// Session is a one-to-one training booking. Date and Start are stored as the
// studio-local "YYYY-MM-DD" / "HH:MM" strings produced by the timetable
// package; no two sessions for the trainer may overlap on the same date.
type Session struct {
	ID              string
	MemberID        string
	MemberName      string
	Date            string
	Start           string
	DurationMinutes int
	CreatedAt       time.Time
}

// Holiday is a fully excluded day.
type Holiday struct {
	ID        string
	Date      string
	CreatedAt time.Time
}

type OverrideKind string

const (
	OverrideBlocked OverrideKind = "blocked" // removes a tick from a normal day
	OverrideOpened  OverrideKind = "opened"  // adds a tick to a default-blocked day
)

// Override is a per-date exception to the standing weekly hours, one 15-minute
// tick at a time.
type Override struct {
	ID    string
	Date  string
	Start string
	Kind  OverrideKind
}

type RescheduleStatus string

const (
	ReschedulePending  RescheduleStatus = "pending"
	RescheduleApproved RescheduleStatus = "approved"
	RescheduleRejected RescheduleStatus = "rejected"
)

// RescheduleRequest moves a session to a new date/time once the trainer
// approves it. pending -> approved|rejected, terminal either way; at most one
// pending request may exist per session (partial unique index).
type RescheduleRequest struct {
	ID             string
	SessionID      string
	MemberID       string
	OriginalDate   string
	OriginalStart  string
	RequestedDate  string
	RequestedStart string
	Status         RescheduleStatus
	CreatedAt      time.Time
	RespondedAt    *time.Time
}
