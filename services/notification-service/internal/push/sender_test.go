package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSenderDelivers(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "secret")
	err := sender.Send(context.Background(), "device-1", Message{
		Title: "Session reminder",
		Body:  "See you at 17:30",
		Data:  map[string]string{"session_id": "s-1"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if got["token"] != "device-1" {
		t.Fatalf("unexpected token: %v", got["token"])
	}
	if got["title"] != "Session reminder" {
		t.Fatalf("unexpected title: %v", got["title"])
	}
}

func TestWebhookSenderDeadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "")
	err := sender.Send(context.Background(), "stale-token", Message{Title: "x"})
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestWebhookSenderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL, "")
	err := sender.Send(context.Background(), "device-1", Message{Title: "x"})
	if err == nil || errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestWebhookSenderUnconfigured(t *testing.T) {
	sender := NewWebhookSender("", "")
	if err := sender.Send(context.Background(), "device-1", Message{Title: "x"}); err == nil {
		t.Fatal("expected error when url is empty")
	}
}
