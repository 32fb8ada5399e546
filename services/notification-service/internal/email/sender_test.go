package email

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@corebuddy.studio", "alex@example.com", "Session reminder", "See you at 17:30")
	for _, want := range []string{
		"From: no-reply@corebuddy.studio",
		"To: alex@example.com",
		"Subject: Session reminder",
		"See you at 17:30",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	if !strings.Contains(msg, "\r\n\r\n") {
		t.Fatal("message missing header/body separator")
	}
}

func TestNewSMTPSenderDefaultsFrom(t *testing.T) {
	s := NewSMTPSender("mailpit", "1025", "  ")
	if s.from != "no-reply@corebuddy.studio" {
		t.Fatalf("unexpected from: %q", s.from)
	}
	if s.addr != "mailpit:1025" {
		t.Fatalf("unexpected addr: %q", s.addr)
	}
}
