package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corebuddy/studiocore/services/buddy-service/internal/chat"
)

func upstream(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
	}))
}

func TestChatStreamsAndExtracts(t *testing.T) {
	srv := upstream(t, []string{
		`{"choices":[{"delta":{"content":"Your plan: "}}]}`,
		`{"choices":[{"delta":{"content":"|||PLAN|||{\"calories\":2500}|||END_PLAN|||"}}]}`,
		"[DONE]",
	})
	defer srv.Close()

	h := NewBuddyHandler(chat.NewClient(srv.URL, "", ""), slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/buddy/chat", strings.NewReader(`{"messages":[{"role":"user","content":"make me a plan"}]}`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: delta") {
		t.Fatalf("missing delta events:\n%s", body)
	}
	if !strings.Contains(body, "event: complete") {
		t.Fatalf("missing complete event:\n%s", body)
	}
	if !strings.Contains(body, `"calories":2500`) {
		t.Fatalf("plan payload not extracted:\n%s", body)
	}
	// The complete event's text must not leak delimiters.
	completeIdx := strings.Index(body, "event: complete")
	if strings.Contains(body[completeIdx:], "|||PLAN|||") {
		t.Fatalf("delimiters leaked into complete event:\n%s", body[completeIdx:])
	}
}

func TestChatRejectsEmptyConversation(t *testing.T) {
	h := NewBuddyHandler(chat.NewClient("http://unused", "", ""), slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/buddy/chat", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestChatUpstreamFailureSurfacesInBand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewBuddyHandler(chat.NewClient(srv.URL, "", ""), slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/buddy/chat", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	rec := httptest.NewRecorder()
	h.Chat(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status should stay 200 once streaming starts, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "event: error") {
		t.Fatalf("missing in-band error event:\n%s", rec.Body.String())
	}
}

func TestMacrosEndpoint(t *testing.T) {
	h := NewBuddyHandler(chat.NewClient("http://unused", "", ""), slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/buddy/macros", strings.NewReader(
		`{"sex":"male","age":30,"height_cm":180,"weight_kg":80,"activity_level":"moderate","goal":"maintain"}`))
	rec := httptest.NewRecorder()
	h.Macros(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d, body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"bmr":1780`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestMacrosRejectsUnknownGoal(t *testing.T) {
	h := NewBuddyHandler(chat.NewClient("http://unused", "", ""), slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/buddy/macros", strings.NewReader(
		`{"sex":"male","age":30,"height_cm":180,"weight_kg":80,"activity_level":"moderate","goal":"shred"}`))
	rec := httptest.NewRecorder()
	h.Macros(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: %d", rec.Code)
	}
}
