// Package roster is the pure state machine over one circuit session: fixed
// slots, FIFO waitlist promotion, VIP auto-fill, the 24-hour cancellation
// notice and the strike/ban ledger. It never touches storage or the real
// clock; handlers feed it records and instants.
package roster

import (
	"errors"
	"time"

	"github.com/corebuddy/studiocore/services/circuit-service/internal/model"
)

const (
	SlotCount    = 8
	StrikeLimit  = 3
	CancelNotice = 24 * time.Hour
)

var (
	ErrSlotTaken      = errors.New("slot already confirmed")
	ErrNoSuchSlot     = errors.New("no such slot")
	ErrAlreadyBooked  = errors.New("member already holds a slot")
	ErrOnWaitlist     = errors.New("member already on waitlist")
	ErrNotSlotHolder  = errors.New("member does not hold this slot")
	ErrInsideDeadline = errors.New("cancellation window has closed")
	ErrSlotsOpen      = errors.New("slots still open; book directly")
	ErrMemberBanned   = errors.New("member is banned from circuit")
)

// NewSession builds an empty roster for date with SlotCount open positions.
func NewSession(date, start, end string) *model.CircuitSession {
	slots := make([]model.RosterSlot, SlotCount)
	for i := range slots {
		slots[i] = model.RosterSlot{Number: i + 1, Status: model.SlotAvailable}
	}
	return &model.CircuitSession{
		Date:  date,
		Start: start,
		End:   end,
		Slots: slots,
	}
}

// StartsAt resolves the session's wall-clock start in loc.
func StartsAt(s *model.CircuitSession, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.Start, loc)
}

// Book claims the numbered slot for a member. A member holds at most one slot
// and cannot simultaneously wait; booking manually also clears any VIP opt-out
// for the date.
func Book(s *model.CircuitSession, slotNumber int, m model.Member, now time.Time) error {
	if m.CircuitBanUntil != nil && now.Before(*m.CircuitBanUntil) {
		return ErrMemberBanned
	}
	if holdsSlot(s, m.ID) {
		return ErrAlreadyBooked
	}
	idx := slotIndex(s, slotNumber)
	if idx < 0 {
		return ErrNoSuchSlot
	}
	if s.Slots[idx].Status != model.SlotAvailable {
		return ErrSlotTaken
	}

	removeFromWaitlist(s, m.ID)
	clearOptOut(s, m.ID)
	confirm(&s.Slots[idx], m, now)
	return nil
}

// JoinWaitlist appends the member when every slot is confirmed.
func JoinWaitlist(s *model.CircuitSession, m model.Member, now time.Time) error {
	if m.CircuitBanUntil != nil && now.Before(*m.CircuitBanUntil) {
		return ErrMemberBanned
	}
	if holdsSlot(s, m.ID) {
		return ErrAlreadyBooked
	}
	for _, e := range s.Waitlist {
		if e.MemberID == m.ID {
			return ErrOnWaitlist
		}
	}
	for _, slot := range s.Slots {
		if slot.Status == model.SlotAvailable {
			return ErrSlotsOpen
		}
	}
	s.Waitlist = append(s.Waitlist, model.WaitlistEntry{
		MemberID:   m.ID,
		MemberName: m.Name,
		MemberType: m.Type,
		AddedAt:    now,
	})
	return nil
}

// Release frees the member's slot. Inside the 24-hour notice window members
// are refused (admin override bypasses). A non-empty waitlist promotes its
// head into the freed slot, preserving the slot number; otherwise the slot
// reopens. A VIP who releases manually is recorded as opted out for the date.
// Returns the promoted entry, if any.
func Release(s *model.CircuitSession, slotNumber int, memberID string, now time.Time, loc *time.Location, admin bool) (*model.WaitlistEntry, error) {
	idx := slotIndex(s, slotNumber)
	if idx < 0 {
		return nil, ErrNoSuchSlot
	}
	slot := &s.Slots[idx]
	if slot.Status != model.SlotConfirmed || slot.MemberID != memberID {
		return nil, ErrNotSlotHolder
	}

	if !admin {
		startsAt, err := StartsAt(s, loc)
		if err != nil {
			return nil, err
		}
		if now.After(startsAt.Add(-CancelNotice)) {
			return nil, ErrInsideDeadline
		}
	}

	if slot.MemberType == "circuit_vip" {
		recordOptOut(s, memberID)
	}

	if len(s.Waitlist) > 0 {
		head := s.Waitlist[0]
		s.Waitlist = s.Waitlist[1:]
		confirm(slot, model.Member{ID: head.MemberID, Name: head.MemberName, Type: head.MemberType}, now)
		return &head, nil
	}

	*slot = model.RosterSlot{Number: slot.Number, Status: model.SlotAvailable}
	return nil, nil
}

// Assign is the trainer placing a member into a slot directly; it skips the
// ban and deadline rules but still honors single-slot occupancy.
func Assign(s *model.CircuitSession, slotNumber int, m model.Member, now time.Time) error {
	if holdsSlot(s, m.ID) {
		return ErrAlreadyBooked
	}
	idx := slotIndex(s, slotNumber)
	if idx < 0 {
		return ErrNoSuchSlot
	}
	if s.Slots[idx].Status != model.SlotAvailable {
		return ErrSlotTaken
	}
	removeFromWaitlist(s, m.ID)
	confirm(&s.Slots[idx], m, now)
	return nil
}

// AutoFillVIPs seats VIP members into open slots on session load, skipping
// anyone already seated, opted out for this date, or banned.
func AutoFillVIPs(s *model.CircuitSession, vips []model.Member, now time.Time) []string {
	var filled []string
	for _, vip := range vips {
		if holdsSlot(s, vip.ID) || optedOut(s, vip.ID) {
			continue
		}
		if vip.CircuitBanUntil != nil && now.Before(*vip.CircuitBanUntil) {
			continue
		}
		idx := firstOpenSlot(s)
		if idx < 0 {
			break
		}
		confirm(&s.Slots[idx], vip, now)
		filled = append(filled, vip.ID)
	}
	return filled
}

// MarkAttendance records the register for one slot and returns the slot.
func MarkAttendance(s *model.CircuitSession, slotNumber int, attended bool) (*model.RosterSlot, error) {
	idx := slotIndex(s, slotNumber)
	if idx < 0 {
		return nil, ErrNoSuchSlot
	}
	slot := &s.Slots[idx]
	if slot.Status != model.SlotConfirmed {
		return nil, ErrNotSlotHolder
	}
	slot.Attended = &attended
	return slot, nil
}

// ApplyStrike adds one no-show strike. At StrikeLimit the member is banned
// until one calendar month after the marking and the counter resets to zero.
// Returns true when the ban fired.
func ApplyStrike(m *model.Member, at time.Time) bool {
	m.CircuitStrikes++
	if m.CircuitStrikes < StrikeLimit {
		return false
	}
	banUntil := at.AddDate(0, 1, 0)
	m.CircuitBanUntil = &banUntil
	m.CircuitStrikes = 0
	return true
}

// ResetStrikes is the manual admin reset; it leaves any active ban in place.
func ResetStrikes(m *model.Member) {
	m.CircuitStrikes = 0
}

// LiftBan clears both the ban and the counter.
func LiftBan(m *model.Member) {
	m.CircuitBanUntil = nil
	m.CircuitStrikes = 0
}

func confirm(slot *model.RosterSlot, m model.Member, now time.Time) {
	bookedAt := now
	slot.MemberID = m.ID
	slot.MemberName = m.Name
	slot.MemberType = m.Type
	slot.Status = model.SlotConfirmed
	slot.Attended = nil
	slot.BookedAt = &bookedAt
}

func slotIndex(s *model.CircuitSession, slotNumber int) int {
	for i := range s.Slots {
		if s.Slots[i].Number == slotNumber {
			return i
		}
	}
	return -1
}

func firstOpenSlot(s *model.CircuitSession) int {
	for i := range s.Slots {
		if s.Slots[i].Status == model.SlotAvailable {
			return i
		}
	}
	return -1
}

func holdsSlot(s *model.CircuitSession, memberID string) bool {
	for _, slot := range s.Slots {
		if slot.Status == model.SlotConfirmed && slot.MemberID == memberID {
			return true
		}
	}
	return false
}

func removeFromWaitlist(s *model.CircuitSession, memberID string) {
	for i, e := range s.Waitlist {
		if e.MemberID == memberID {
			s.Waitlist = append(s.Waitlist[:i], s.Waitlist[i+1:]...)
			return
		}
	}
}

func recordOptOut(s *model.CircuitSession, memberID string) {
	if !optedOut(s, memberID) {
		s.VIPOptOuts = append(s.VIPOptOuts, memberID)
	}
}

func clearOptOut(s *model.CircuitSession, memberID string) {
	for i, id := range s.VIPOptOuts {
		if id == memberID {
			s.VIPOptOuts = append(s.VIPOptOuts[:i], s.VIPOptOuts[i+1:]...)
			return
		}
	}
}

func optedOut(s *model.CircuitSession, memberID string) bool {
	for _, id := range s.VIPOptOuts {
		if id == memberID {
			return true
		}
	}
	return false
}
