package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/corebuddy/studiocore/services/buddy-service/internal/chat"
	"github.com/corebuddy/studiocore/services/buddy-service/internal/macros"
)

type BuddyHandler struct {
	chat   *chat.Client
	logger *slog.Logger
}

func NewBuddyHandler(chatClient *chat.Client, logger *slog.Logger) *BuddyHandler {
	return &BuddyHandler{
		chat:   chatClient,
		logger: logger,
	}
}

// Chat handles POST /api/v1/buddy/chat. It proxies the conversation upstream
// and re-streams deltas to the caller as SSE; the final event carries the full
// text with any embedded profile/plan payloads extracted.
func (h *BuddyHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	full, err := h.chat.Stream(r.Context(), req.Messages, func(delta string) error {
		return writeEvent(w, flusher, "delta", map[string]string{"text": delta})
	})
	if err != nil {
		h.logger.Error("chat stream failed", "err", err)
		// Headers are gone; all we can do is surface it in-band.
		_ = writeEvent(w, flusher, "error", map[string]string{"message": "chat upstream failed"})
		return
	}

	result := chat.Extract(full)
	if err := writeEvent(w, flusher, "complete", result); err != nil {
		h.logger.Warn("client dropped before completion event", "err", err)
	}
}

// Macros handles POST /api/v1/buddy/macros.
func (h *BuddyHandler) Macros(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var profile macros.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	targets, err := macros.Calculate(profile)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(targets)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(raw) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
