package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
	}
}

func TestStreamCollectsDeltas(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{}}]}`,
		"[DONE]",
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "")
	var deltas []string
	full, err := client.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if full != "Hello" {
		t.Fatalf("full text: got %q, want %q", full, "Hello")
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %v", deltas)
	}
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`not json at all`,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
		"[DONE]",
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")
	full, err := client.Stream(context.Background(), nil, func(string) error { return nil })
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if full != "ok" {
		t.Fatalf("full text: got %q", full)
	}
}

func TestStreamUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")
	if _, err := client.Stream(context.Background(), nil, func(string) error { return nil }); err == nil {
		t.Fatal("expected error on non-200 upstream")
	}
}

func TestStreamAbortsWhenDeltaCallbackFails(t *testing.T) {
	srv := httptest.NewServer(sseHandler([]string{
		`{"choices":[{"delta":{"content":"a"}}]}`,
		`{"choices":[{"delta":{"content":"b"}}]}`,
		"[DONE]",
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")
	calls := 0
	_, err := client.Stream(context.Background(), nil, func(string) error {
		calls++
		return context.Canceled
	})
	if err == nil {
		t.Fatal("expected callback error to propagate")
	}
	if calls != 1 {
		t.Fatalf("stream should stop after first failed delta, got %d calls", calls)
	}
}
