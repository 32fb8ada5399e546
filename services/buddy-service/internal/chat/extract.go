package chat

import (
	"encoding/json"
	"strings"
)

// The assistant embeds structured payloads in-band, wrapped in delimiters the
// client never renders.
const (
	profileStart = "|||PROFILE|||"
	profileEnd   = "|||END|||"
	planStart    = "|||PLAN|||"
	planEnd      = "|||END_PLAN|||"
)

// Result is a finished completion split into display text and any embedded
// payloads. A missing or malformed payload leaves the field nil; the text
// reply always survives.
type Result struct {
	Text    string          `json:"text"`
	Profile json.RawMessage `json:"profile,omitempty"`
	Plan    json.RawMessage `json:"plan,omitempty"`
}

// Extract strips delimiter blocks from the buffered completion and parses the
// embedded JSON. Invalid JSON inside a block degrades to text-only.
func Extract(full string) Result {
	text, profile := cut(full, profileStart, profileEnd)
	text, plan := cut(text, planStart, planEnd)
	return Result{
		Text:    strings.TrimSpace(text),
		Profile: profile,
		Plan:    plan,
	}
}

func cut(s string, start string, end string) (string, json.RawMessage) {
	from := strings.Index(s, start)
	if from < 0 {
		return s, nil
	}
	rest := s[from+len(start):]
	to := strings.Index(rest, end)
	if to < 0 {
		// Unterminated block: hide the marker but keep whatever followed it
		// as text so the reply is not silently truncated.
		return s[:from] + rest, nil
	}

	inner := strings.TrimSpace(rest[:to])
	remainder := s[:from] + rest[to+len(end):]

	if !json.Valid([]byte(inner)) {
		return remainder, nil
	}
	return remainder, json.RawMessage(inner)
}
