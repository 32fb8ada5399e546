package chat

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractProfileAndPlan(t *testing.T) {
	full := "Great, here's what I've got.\n" +
		"|||PROFILE|||{\"sex\":\"male\",\"age\":30}|||END|||" +
		"Now your plan:\n" +
		"|||PLAN|||{\"calories\":2700}|||END_PLAN|||" +
		"Any questions?"

	got := Extract(full)
	if got.Profile == nil || got.Plan == nil {
		t.Fatalf("expected both payloads, got %+v", got)
	}

	var profile struct {
		Sex string `json:"sex"`
		Age int    `json:"age"`
	}
	if err := json.Unmarshal(got.Profile, &profile); err != nil {
		t.Fatalf("profile unmarshal: %v", err)
	}
	if profile.Sex != "male" || profile.Age != 30 {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	for _, marker := range []string{"|||PROFILE|||", "|||END|||", "|||PLAN|||", "|||END_PLAN|||"} {
		if strings.Contains(got.Text, marker) {
			t.Fatalf("display text still contains %q: %q", marker, got.Text)
		}
	}
	if !strings.Contains(got.Text, "Any questions?") {
		t.Fatalf("trailing text lost: %q", got.Text)
	}
}

func TestExtractMalformedJSONFallsBackToText(t *testing.T) {
	full := "Here you go |||PLAN|||{calories: not json}|||END_PLAN||| done."
	got := Extract(full)
	if got.Plan != nil {
		t.Fatalf("malformed payload should be dropped, got %s", got.Plan)
	}
	if got.Text != "Here you go  done." {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}

func TestExtractNoMarkers(t *testing.T) {
	got := Extract("Just chatting, no payloads here.")
	if got.Profile != nil || got.Plan != nil {
		t.Fatal("expected no payloads")
	}
	if got.Text != "Just chatting, no payloads here." {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}

func TestExtractUnterminatedBlockKeepsText(t *testing.T) {
	got := Extract("Prefix |||PLAN|||{\"calories\":2700} and the stream cut off")
	if got.Plan != nil {
		t.Fatal("unterminated block should not yield a payload")
	}
	if !strings.Contains(got.Text, "stream cut off") {
		t.Fatalf("text after marker lost: %q", got.Text)
	}
}
