package jobs

import (
	"strings"
	"testing"
	"time"
)

func TestReminderMessage(t *testing.T) {
	job := Job{
		SessionID: "s-1",
		MemberID:  "m-1",
		RemindAt:  time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC),
		TemplateData: map[string]any{
			"member_name": "Alex",
			"date":        "2026-03-04",
			"start":       "17:30",
		},
	}
	msg := reminderMessage(job)
	if msg.Title != "Session reminder" {
		t.Fatalf("unexpected title: %q", msg.Title)
	}
	if !strings.Contains(msg.Body, "2026-03-04") || !strings.Contains(msg.Body, "17:30") {
		t.Fatalf("body missing session details: %q", msg.Body)
	}
	if msg.Data["session_id"] != "s-1" {
		t.Fatalf("unexpected data: %v", msg.Data)
	}
}

func TestReminderMessageMissingTemplateData(t *testing.T) {
	msg := reminderMessage(Job{SessionID: "s-2", TemplateData: map[string]any{}})
	if msg.Title == "" || msg.Body == "" {
		t.Fatal("message should still render without template data")
	}
}
