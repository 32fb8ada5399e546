package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/corebuddy/studiocore/services/notification-service/internal/feed"
	"github.com/corebuddy/studiocore/services/notification-service/internal/push"
)

type NotificationHandler struct {
	tokens *push.TokenRepository
	feed   *feed.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewNotificationHandler(tokens *push.TokenRepository, feedRepo *feed.Repository, logger *slog.Logger, now func() time.Time) *NotificationHandler {
	return &NotificationHandler{
		tokens: tokens,
		feed:   feedRepo,
		logger: logger,
		now:    now,
	}
}

// RegisterToken handles POST /api/v1/notifications/tokens.
func (h *NotificationHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "member identity required", http.StatusUnauthorized)
		return
	}

	var req struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	if req.Platform == "" {
		req.Platform = "unknown"
	}

	err := h.tokens.Register(r.Context(), push.Token{
		MemberID: memberID,
		Token:    req.Token,
		Platform: req.Platform,
	})
	if err != nil {
		h.logger.Error("token register failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// RemoveToken handles POST /api/v1/notifications/tokens/remove. Removal is
// idempotent so logout flows can fire and forget.
func (h *NotificationHandler) RemoveToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	if err := h.tokens.Remove(r.Context(), req.Token); err != nil {
		h.logger.Error("token remove failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// Feed handles GET /api/v1/notifications/feed.
func (h *NotificationHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "member identity required", http.StatusUnauthorized)
		return
	}

	entries, err := h.feed.ListActive(r.Context(), memberID, h.now())
	if err != nil {
		h.logger.Error("feed list failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []feed.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// DismissFeedEntry handles POST /api/v1/notifications/feed/dismiss.
func (h *NotificationHandler) DismissFeedEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	memberID := strings.TrimSpace(r.Header.Get("X-Member-Id"))
	if memberID == "" {
		http.Error(w, "member identity required", http.StatusUnauthorized)
		return
	}

	var req struct {
		ID json.Number `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(req.ID.String(), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	ok, err := h.feed.Dismiss(r.Context(), id, memberID)
	if err != nil {
		h.logger.Error("feed dismiss failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
