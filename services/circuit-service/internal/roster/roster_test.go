package roster

import (
	"testing"
	"time"

	"github.com/corebuddy/studiocore/services/circuit-service/internal/model"
)

var (
	loc     = time.UTC
	now     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice   = model.Member{ID: "m-alice", Name: "Alice", Type: "circuit_dropin"}
	bob     = model.Member{ID: "m-bob", Name: "Bob", Type: "circuit_dropin"}
	vera    = model.Member{ID: "m-vera", Name: "Vera", Type: "circuit_vip"}
	session = func() *model.CircuitSession { return NewSession("2026-03-04", "17:30", "18:15") }
)

func TestNewSession(t *testing.T) {
	s := session()
	if len(s.Slots) != SlotCount {
		t.Fatalf("expected %d slots, got %d", SlotCount, len(s.Slots))
	}
	for i, slot := range s.Slots {
		if slot.Number != i+1 || slot.Status != model.SlotAvailable {
			t.Fatalf("slot %d not initialised open: %+v", i, slot)
		}
	}
}

func TestBook(t *testing.T) {
	s := session()
	if err := Book(s, 3, alice, now); err != nil {
		t.Fatalf("book failed: %v", err)
	}
	if s.Slots[2].MemberID != alice.ID || s.Slots[2].Status != model.SlotConfirmed {
		t.Fatalf("slot 3 not confirmed for alice: %+v", s.Slots[2])
	}
	if err := Book(s, 3, bob, now); err != ErrSlotTaken {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := Book(s, 4, alice, now); err != ErrAlreadyBooked {
		t.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}
	if err := Book(s, 99, bob, now); err != ErrNoSuchSlot {
		t.Fatalf("expected ErrNoSuchSlot, got %v", err)
	}

	until := now.Add(time.Hour)
	banned := model.Member{ID: "m-ban", Name: "Banned", Type: "circuit_dropin", CircuitBanUntil: &until}
	if err := Book(s, 4, banned, now); err != ErrMemberBanned {
		t.Fatalf("expected ErrMemberBanned, got %v", err)
	}
	if err := Book(s, 4, banned, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("expired ban should not block: %v", err)
	}
}

func TestReleasePromotesWaitlistHead(t *testing.T) {
	s := session()
	for i := 1; i <= SlotCount; i++ {
		m := model.Member{ID: "m-" + string(rune('a'+i)), Name: "M", Type: "circuit_dropin"}
		if err := Book(s, i, m, now); err != nil {
			t.Fatalf("seed book %d: %v", i, err)
		}
	}
	if err := JoinWaitlist(s, alice, now); err != nil {
		t.Fatalf("join waitlist: %v", err)
	}
	if err := JoinWaitlist(s, bob, now.Add(time.Minute)); err != nil {
		t.Fatalf("join waitlist: %v", err)
	}

	holder := s.Slots[4].MemberID
	promoted, err := Release(s, 5, holder, now, loc, false)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if promoted == nil || promoted.MemberID != alice.ID {
		t.Fatalf("waitlist head should be promoted, got %+v", promoted)
	}
	if s.Slots[4].Status != model.SlotConfirmed || s.Slots[4].MemberID != alice.ID {
		t.Fatalf("slot should stay confirmed with promoted member: %+v", s.Slots[4])
	}
	if s.Slots[4].Number != 5 {
		t.Fatalf("promotion must preserve slot number, got %d", s.Slots[4].Number)
	}
	if len(s.Waitlist) != 1 || s.Waitlist[0].MemberID != bob.ID {
		t.Fatalf("promoted entry must leave the waitlist: %+v", s.Waitlist)
	}
}

func TestReleaseEmptyWaitlistReopensSlot(t *testing.T) {
	s := session()
	if err := Book(s, 2, alice, now); err != nil {
		t.Fatalf("book: %v", err)
	}
	promoted, err := Release(s, 2, alice.ID, now, loc, false)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if promoted != nil {
		t.Fatalf("no-one should be promoted, got %+v", promoted)
	}
	slot := s.Slots[1]
	if slot.Status != model.SlotAvailable || slot.MemberID != "" || slot.MemberName != "" || slot.BookedAt != nil {
		t.Fatalf("slot should be fully reset: %+v", slot)
	}
	if slot.Number != 2 {
		t.Fatalf("slot number must survive reset, got %d", slot.Number)
	}
}

func TestReleaseDeadline(t *testing.T) {
	s := session() // starts 2026-03-04 17:30 UTC
	if err := Book(s, 1, alice, now); err != nil {
		t.Fatalf("book: %v", err)
	}

	inside := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC) // 23.5h before start
	if _, err := Release(s, 1, alice.ID, inside, loc, false); err != ErrInsideDeadline {
		t.Fatalf("expected ErrInsideDeadline, got %v", err)
	}
	// Admin override ignores the notice window.
	if _, err := Release(s, 1, alice.ID, inside, loc, true); err != nil {
		t.Fatalf("admin release should bypass deadline: %v", err)
	}

	if err := Book(s, 1, alice, now); err != nil {
		t.Fatalf("rebook: %v", err)
	}
	outside := time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC) // 24.5h before start
	if _, err := Release(s, 1, alice.ID, outside, loc, false); err != nil {
		t.Fatalf("release outside the window should succeed: %v", err)
	}
}

func TestVIPOptOutLifecycle(t *testing.T) {
	s := session()
	if err := Book(s, 1, vera, now); err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := Release(s, 1, vera.ID, now, loc, false); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(s.VIPOptOuts) != 1 || s.VIPOptOuts[0] != vera.ID {
		t.Fatalf("VIP release must record an opt-out: %+v", s.VIPOptOuts)
	}

	// Opted-out VIPs are skipped by auto-fill.
	filled := AutoFillVIPs(s, []model.Member{vera}, now)
	if len(filled) != 0 {
		t.Fatalf("opted-out VIP must not be auto-filled: %v", filled)
	}

	// Manual re-book clears the opt-out.
	if err := Book(s, 1, vera, now); err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if len(s.VIPOptOuts) != 0 {
		t.Fatalf("manual re-book must clear the opt-out: %+v", s.VIPOptOuts)
	}
}

func TestAutoFillVIPs(t *testing.T) {
	s := session()
	if err := Book(s, 1, alice, now); err != nil {
		t.Fatalf("book: %v", err)
	}
	until := now.Add(48 * time.Hour)
	vips := []model.Member{
		vera,
		{ID: "m-vip2", Name: "V2", Type: "circuit_vip"},
		{ID: "m-vip3", Name: "V3", Type: "circuit_vip", CircuitBanUntil: &until},
	}
	filled := AutoFillVIPs(s, vips, now)
	if len(filled) != 2 {
		t.Fatalf("expected 2 auto-filled VIPs (banned one skipped), got %v", filled)
	}
	if s.Slots[1].MemberID != vera.ID || s.Slots[2].MemberID != "m-vip2" {
		t.Fatalf("VIPs should take the first open slots: %+v %+v", s.Slots[1], s.Slots[2])
	}
	// Re-running is a no-op for already seated VIPs.
	if again := AutoFillVIPs(s, vips, now); len(again) != 0 {
		t.Fatalf("second auto-fill should seat no-one, got %v", again)
	}
}

func TestStrikeAccumulationBansAtThree(t *testing.T) {
	m := model.Member{ID: "m-x", Name: "X", Type: "circuit_dropin"}

	if banned := ApplyStrike(&m, now); banned || m.CircuitStrikes != 1 {
		t.Fatalf("first strike: banned=%v strikes=%d", banned, m.CircuitStrikes)
	}
	if banned := ApplyStrike(&m, now); banned || m.CircuitStrikes != 2 {
		t.Fatalf("second strike: banned=%v strikes=%d", banned, m.CircuitStrikes)
	}
	third := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	if banned := ApplyStrike(&m, third); !banned {
		t.Fatal("third strike must ban")
	}
	if m.CircuitStrikes != 0 {
		t.Fatalf("strikes must reset to 0 on ban, got %d", m.CircuitStrikes)
	}
	want := time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC)
	if m.CircuitBanUntil == nil || !m.CircuitBanUntil.Equal(want) {
		t.Fatalf("ban must run exactly one calendar month from the third marking, got %v", m.CircuitBanUntil)
	}

	LiftBan(&m)
	if m.CircuitBanUntil != nil || m.CircuitStrikes != 0 {
		t.Fatalf("lift ban must clear both fields: %+v", m)
	}

	ApplyStrike(&m, now)
	ResetStrikes(&m)
	if m.CircuitStrikes != 0 {
		t.Fatalf("manual reset failed: %d", m.CircuitStrikes)
	}
}

func TestMarkAttendance(t *testing.T) {
	s := session()
	if err := Book(s, 6, alice, now); err != nil {
		t.Fatalf("book: %v", err)
	}
	slot, err := MarkAttendance(s, 6, false)
	if err != nil {
		t.Fatalf("mark attendance: %v", err)
	}
	if slot.Attended == nil || *slot.Attended {
		t.Fatalf("expected attended=false recorded, got %+v", slot.Attended)
	}
	if _, err := MarkAttendance(s, 7, true); err != ErrNotSlotHolder {
		t.Fatalf("marking an open slot should fail, got %v", err)
	}
}

func TestJoinWaitlistRules(t *testing.T) {
	s := session()
	if err := JoinWaitlist(s, alice, now); err != ErrSlotsOpen {
		t.Fatalf("expected ErrSlotsOpen, got %v", err)
	}
	for i := 1; i <= SlotCount; i++ {
		m := model.Member{ID: "m-" + string(rune('a'+i)), Name: "M", Type: "circuit_dropin"}
		if err := Book(s, i, m, now); err != nil {
			t.Fatalf("seed book: %v", err)
		}
	}
	if err := JoinWaitlist(s, alice, now); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := JoinWaitlist(s, alice, now); err != ErrOnWaitlist {
		t.Fatalf("expected ErrOnWaitlist, got %v", err)
	}
	if err := JoinWaitlist(s, model.Member{ID: s.Slots[0].MemberID}, now); err != ErrAlreadyBooked {
		t.Fatalf("slot holder cannot also wait, got %v", err)
	}
}
