package events

import (
	"strings"
	"testing"
)

func TestRescheduleFeedEntryApproved(t *testing.T) {
	entry := rescheduleFeedEntry(rescheduleEvent{
		RequestID:      "req-1",
		MemberID:       "member-1",
		RequestedDate:  "2026-03-02",
		RequestedStart: "09:00",
		Status:         "approved",
	})

	if entry.Title != "Reschedule approved" {
		t.Fatalf("approved request surfaced as %q", entry.Title)
	}
	if !strings.Contains(entry.Body, "moved to 2026-03-02 at 09:00") {
		t.Fatalf("approved body should name the new slot, got %q", entry.Body)
	}
	if entry.Kind != "reschedule_approved" {
		t.Fatalf("unexpected kind %q", entry.Kind)
	}
	if entry.RefID != "req-1" || entry.MemberID != "member-1" {
		t.Fatal("entry should carry the request and member ids")
	}
}

func TestRescheduleFeedEntryRejected(t *testing.T) {
	entry := rescheduleFeedEntry(rescheduleEvent{
		RequestID:      "req-2",
		MemberID:       "member-1",
		RequestedDate:  "2026-03-02",
		RequestedStart: "09:00",
		Status:         "rejected",
	})

	if entry.Title != "Reschedule declined" {
		t.Fatalf("rejected request surfaced as %q", entry.Title)
	}
	if !strings.Contains(entry.Body, "was declined") {
		t.Fatalf("rejected body should say declined, got %q", entry.Body)
	}
	if entry.Kind != "reschedule_rejected" {
		t.Fatalf("unexpected kind %q", entry.Kind)
	}
}
