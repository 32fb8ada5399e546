package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/corebuddy/studiocore/libs/outbox"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/model"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/storage"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/timetable"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type createRescheduleRequest struct {
	SessionID      string `json:"session_id"`
	RequestedDate  string `json:"requested_date"`
	RequestedStart string `json:"requested_start"`
}

type respondRescheduleRequest struct {
	RequestID string `json:"request_id"`
	Approve   bool   `json:"approve"`
}

type rescheduleItem struct {
	RequestID      string `json:"request_id"`
	SessionID      string `json:"session_id"`
	MemberID       string `json:"member_id"`
	OriginalDate   string `json:"original_date"`
	OriginalStart  string `json:"original_start"`
	RequestedDate  string `json:"requested_date"`
	RequestedStart string `json:"requested_start"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

// CreateReschedule records a member's request to move a session. The requested
// slot must be available right now (excluding the session being moved), and
// only one pending request may exist per session.
func (h *SessionHandler) CreateReschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.RequestedDate = strings.TrimSpace(req.RequestedDate)
	req.RequestedStart = strings.TrimSpace(req.RequestedStart)
	if req.SessionID == "" || req.RequestedDate == "" || req.RequestedStart == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	date, err := timetable.ParseDateKey(req.RequestedDate, h.engine.Location())
	if err != nil {
		http.Error(w, "invalid requested_date", http.StatusBadRequest)
		return
	}
	if _, err := timetable.MinuteOfDay(req.RequestedStart); err != nil {
		http.Error(w, "invalid requested_start", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	session, err := h.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}

	if ok, status, msg := h.requestedSlotFree(ctx, date, req.RequestedDate, req.RequestedStart, session); !ok {
		http.Error(w, msg, status)
		return
	}

	tx, err := h.sessions.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	request := &model.RescheduleRequest{
		ID:             uuid.NewString(),
		SessionID:      session.ID,
		MemberID:       session.MemberID,
		OriginalDate:   session.Date,
		OriginalStart:  session.Start,
		RequestedDate:  req.RequestedDate,
		RequestedStart: req.RequestedStart,
	}
	if err := h.reschedules.Create(ctx, tx, request); err != nil {
		if storage.IsDuplicate(err) {
			http.Error(w, "a pending request already exists for this session", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create request", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"request_id": request.ID})
}

// RespondReschedule is the trainer's decision. Approval re-checks the slot and
// moves the session inside the same transaction; rejection leaves the session
// untouched. Either way the request is terminal and the member is notified
// through the responded event.
func (h *SessionHandler) RespondReschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req respondRescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" {
		http.Error(w, "request_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.sessions.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	request, err := h.reschedules.GetForUpdate(ctx, tx, req.RequestID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load request", http.StatusInternalServerError)
		return
	}
	if request.Status != model.ReschedulePending {
		http.Error(w, "request already responded", http.StatusConflict)
		return
	}

	status := model.RescheduleRejected
	if req.Approve {
		status = model.RescheduleApproved

		date, err := timetable.ParseDateKey(request.RequestedDate, h.engine.Location())
		if err != nil {
			http.Error(w, "stored request has invalid date", http.StatusInternalServerError)
			return
		}
		session, err := h.sessions.GetForUpdate(ctx, tx, request.SessionID)
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "session no longer exists", http.StatusConflict)
				return
			}
			http.Error(w, "failed to load session", http.StatusInternalServerError)
			return
		}
		if ok, code, msg := h.requestedSlotFree(ctx, date, request.RequestedDate, request.RequestedStart, session); !ok {
			http.Error(w, msg, code)
			return
		}
		if err := h.sessions.Move(ctx, tx, session.ID, request.RequestedDate, request.RequestedStart); err != nil {
			if storage.IsConflict(err) {
				http.Error(w, "requested slot was just booked", http.StatusConflict)
				return
			}
			http.Error(w, "failed to move session", http.StatusInternalServerError)
			return
		}
	}

	respondedAt, err := h.reschedules.Respond(ctx, tx, request.ID, status)
	if err != nil {
		http.Error(w, "failed to record response", http.StatusInternalServerError)
		return
	}

	if err := h.emitRescheduleResponded(ctx, tx, request, status, respondedAt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"request_id": request.ID, "status": string(status)})
}

func (h *SessionHandler) ListReschedules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := h.reschedules.ListPending(r.Context())
	if err != nil {
		http.Error(w, "failed to list requests", http.StatusInternalServerError)
		return
	}
	items := make([]rescheduleItem, 0, len(pending))
	for _, req := range pending {
		items = append(items, rescheduleItem{
			RequestID:      req.ID,
			SessionID:      req.SessionID,
			MemberID:       req.MemberID,
			OriginalDate:   req.OriginalDate,
			OriginalStart:  req.OriginalStart,
			RequestedDate:  req.RequestedDate,
			RequestedStart: req.RequestedStart,
			Status:         string(req.Status),
			CreatedAt:      req.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// requestedSlotFree runs the engine against the requested day, excluding the
// session being moved so it does not conflict with itself.
func (h *SessionHandler) requestedSlotFree(ctx context.Context, date time.Time, dateKey, start string, session model.Session) (bool, int, string) {
	day, err := h.loadDay(ctx, dateKey)
	if err != nil {
		return false, http.StatusInternalServerError, "failed to load schedule"
	}
	if !h.engine.SlotAvailable(date, start, session.DurationMinutes, day.bookings, day.holidays, day.overrides, session.ID) {
		return false, http.StatusUnprocessableEntity, "requested slot is not available"
	}
	return true, 0, ""
}

func (h *SessionHandler) emitRescheduleResponded(ctx context.Context, tx pgx.Tx, req model.RescheduleRequest, status model.RescheduleStatus, respondedAt time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"request_id":      req.ID,
		"session_id":      req.SessionID,
		"member_id":       req.MemberID,
		"original_date":   req.OriginalDate,
		"original_start":  req.OriginalStart,
		"requested_date":  req.RequestedDate,
		"requested_start": req.RequestedStart,
		"status":          string(status),
		"responded_at":    respondedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "reschedule_request",
		AggregateID:   req.ID,
		EventType:     "scheduling.reschedule.responded.v1",
		Payload:       payload,
	})
}
