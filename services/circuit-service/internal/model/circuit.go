package model

import "time"

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotConfirmed SlotStatus = "confirmed"
)

// RosterSlot is one of a session's fixed positions. Identity fields are empty
// while the slot is available. Attended stays nil until the trainer marks the
// register after class.
type RosterSlot struct {
	Number     int        `json:"slot_number"`
	MemberID   string     `json:"member_id,omitempty"`
	MemberName string     `json:"member_name,omitempty"`
	MemberType string     `json:"member_type,omitempty"`
	Status     SlotStatus `json:"status"`
	Attended   *bool      `json:"attended,omitempty"`
	BookedAt   *time.Time `json:"booked_at,omitempty"`
}

type WaitlistEntry struct {
	MemberID   string    `json:"member_id"`
	MemberName string    `json:"member_name"`
	MemberType string    `json:"member_type"`
	AddedAt    time.Time `json:"added_at"`
}

// CircuitSession is one group-class instance, keyed by its date. Slots and
// waitlist persist as JSONB on a single row so every mutation is one
// read-modify-write under FOR UPDATE.
type CircuitSession struct {
	Date       string
	Start      string
	End        string
	Slots      []RosterSlot
	Waitlist   []WaitlistEntry
	VIPOptOuts []string
}

// Member carries the circuit discipline fields alongside the membership tag.
type Member struct {
	ID              string
	Name            string
	Type            string // circuit_vip | circuit_dropin | block | core_buddy
	CircuitStrikes  int
	CircuitBanUntil *time.Time
}
