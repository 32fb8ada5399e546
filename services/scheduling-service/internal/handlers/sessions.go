package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/corebuddy/studiocore/libs/outbox"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/model"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/storage"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/timetable"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SessionHandler owns the one-to-one booking surface: slot listing, booking,
// cancellation and the reschedule workflow. Every availability decision goes
// through the shared timetable engine.
type SessionHandler struct {
	engine          *timetable.Engine
	sessions        *storage.SessionRepository
	schedule        *storage.ScheduleRepository
	reschedules     *storage.RescheduleRepository
	outboxRepo      *outbox.Repository
	logger          *slog.Logger
	defaultDuration int
	reminderOffsets []time.Duration
}

func NewSessionHandler(
	engine *timetable.Engine,
	sessions *storage.SessionRepository,
	schedule *storage.ScheduleRepository,
	reschedules *storage.RescheduleRepository,
	outboxRepo *outbox.Repository,
	logger *slog.Logger,
	defaultDuration int,
	reminderOffsets []time.Duration,
) *SessionHandler {
	if defaultDuration <= 0 {
		defaultDuration = 45
	}
	return &SessionHandler{
		engine:          engine,
		sessions:        sessions,
		schedule:        schedule,
		reschedules:     reschedules,
		outboxRepo:      outboxRepo,
		logger:          logger,
		defaultDuration: defaultDuration,
		reminderOffsets: reminderOffsets,
	}
}

type slotItem struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Period  string `json:"period"`
	Display string `json:"display"`
}

type createSessionRequest struct {
	MemberID        string `json:"member_id"`
	MemberName      string `json:"member_name"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
}

type sessionItem struct {
	SessionID       string `json:"session_id"`
	MemberID        string `json:"member_id"`
	MemberName      string `json:"member_name"`
	Date            string `json:"date"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
	CreatedAt       string `json:"created_at"`
}

// Slots lists bookable start times for one date.
func (h *SessionHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	date, err := timetable.ParseDateKey(dateStr, h.engine.Location())
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	duration := h.defaultDuration
	if v := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 8*60 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		duration = n
	}

	day, err := h.loadDay(r.Context(), dateStr)
	if err != nil {
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}

	slots := h.engine.AvailableSlots(date, duration, day.bookings, day.holidays, day.overrides)
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		end, err := timetable.AddMinutes(s.Start, duration)
		if err != nil {
			continue
		}
		items = append(items, slotItem{
			Start:   s.Start,
			End:     end,
			Period:  string(s.Period),
			Display: timetable.FormatClock12(s.Start),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

// Create books a session after an in-transaction availability check. The
// sessions table's exclusion constraint is the backstop for concurrent writers.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.MemberID = strings.TrimSpace(req.MemberID)
	req.MemberName = strings.TrimSpace(req.MemberName)
	req.Date = strings.TrimSpace(req.Date)
	req.Start = strings.TrimSpace(req.Start)
	if req.MemberID == "" || req.MemberName == "" || req.Date == "" || req.Start == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = h.defaultDuration
	}

	date, err := timetable.ParseDateKey(req.Date, h.engine.Location())
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	if _, err := timetable.MinuteOfDay(req.Start); err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.sessions.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.checkSessionBalance(ctx, tx, req.MemberID); err != nil {
		if errors.Is(err, errNoSessionsLeft) {
			http.Error(w, err.Error(), http.StatusPaymentRequired)
			return
		}
		http.Error(w, "entitlements check failed", http.StatusInternalServerError)
		return
	}

	day, err := h.loadDay(ctx, req.Date)
	if err != nil {
		http.Error(w, "failed to load schedule", http.StatusInternalServerError)
		return
	}
	if !h.engine.SlotAvailable(date, req.Start, req.DurationMinutes, day.bookings, day.holidays, day.overrides, "") {
		http.Error(w, "slot is not available", http.StatusUnprocessableEntity)
		return
	}

	session := &model.Session{
		ID:              uuid.NewString(),
		MemberID:        req.MemberID,
		MemberName:      req.MemberName,
		Date:            req.Date,
		Start:           req.Start,
		DurationMinutes: req.DurationMinutes,
	}
	if err := h.sessions.Create(ctx, tx, session); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "slot was just booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	if err := h.emitSessionEvent(ctx, tx, "scheduling.session.booked.v1", session); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	h.enqueueReminders(ctx, tx, session)

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": session.ID})
}

// Cancel deletes the session; freed availability is recomputed live from the
// remaining rows, nothing else is persisted.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.sessions.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	session, err := h.sessions.Delete(ctx, tx, req.SessionID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to cancel session", http.StatusInternalServerError)
		return
	}

	if err := h.emitSessionEvent(ctx, tx, "scheduling.session.cancelled.v1", &session); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": session.ID, "status": "cancelled"})
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	if _, err := timetable.ParseDateKey(from, h.engine.Location()); err != nil {
		http.Error(w, "invalid from", http.StatusBadRequest)
		return
	}
	if _, err := timetable.ParseDateKey(to, h.engine.Location()); err != nil {
		http.Error(w, "invalid to", http.StatusBadRequest)
		return
	}

	sessions, err := h.sessions.ListRange(r.Context(), from, to)
	if err != nil {
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	items := make([]sessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionView(s))
	}
	writeJSON(w, http.StatusOK, items)
}

var errNoSessionsLeft = errors.New("no sessions remaining on package")

// checkSessionBalance applies the block-package rule: members on a session
// pack must have purchased more sessions than they have booked. Members on
// other tiers (or unknown to billing yet) book freely.
func (h *SessionHandler) checkSessionBalance(ctx context.Context, tx pgx.Tx, memberID string) error {
	ent, ok, err := h.sessions.GetMemberEntitlements(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if !ok || ent.Tier != "block" || ent.PurchasedSessions <= 0 {
		return nil
	}
	used, err := h.sessions.CountForMember(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if used >= ent.PurchasedSessions {
		return errNoSessionsLeft
	}
	return nil
}

// dayContext is everything the engine needs to judge one date.
type dayContext struct {
	bookings  []timetable.Booking
	holidays  map[string]struct{}
	overrides timetable.Overrides
}

func (h *SessionHandler) loadDay(ctx context.Context, date string) (dayContext, error) {
	sessions, err := h.sessions.ListByDate(ctx, date)
	if err != nil {
		return dayContext{}, err
	}
	holidays, err := h.schedule.HolidaySet(ctx, date, date)
	if err != nil {
		return dayContext{}, err
	}
	blocked, opened, err := h.schedule.OverridesForDate(ctx, date)
	if err != nil {
		return dayContext{}, err
	}

	bookings := make([]timetable.Booking, 0, len(sessions))
	for _, s := range sessions {
		bookings = append(bookings, timetable.Booking{
			ID:              s.ID,
			Date:            s.Date,
			Start:           s.Start,
			DurationMinutes: s.DurationMinutes,
		})
	}
	return dayContext{
		bookings:  bookings,
		holidays:  holidays,
		overrides: timetable.Overrides{Blocked: blocked, Opened: opened},
	}, nil
}

func (h *SessionHandler) emitSessionEvent(ctx context.Context, tx pgx.Tx, eventType string, s *model.Session) error {
	payload, err := json.Marshal(map[string]any{
		"session_id":       s.ID,
		"member_id":        s.MemberID,
		"member_name":      s.MemberName,
		"date":             s.Date,
		"start":            s.Start,
		"duration_minutes": s.DurationMinutes,
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "session",
		AggregateID:   s.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

// enqueueReminders requests a reminder per configured offset; past offsets are skipped.
func (h *SessionHandler) enqueueReminders(ctx context.Context, tx pgx.Tx, s *model.Session) {
	day, err := timetable.ParseDateKey(s.Date, h.engine.Location())
	if err != nil {
		return
	}
	startMin, err := timetable.MinuteOfDay(s.Start)
	if err != nil {
		return
	}
	startsAt := day.Add(time.Duration(startMin) * time.Minute)

	now := h.engine.Now().UTC()
	for _, offset := range h.reminderOffsets {
		remindAt := startsAt.Add(-offset)
		if remindAt.Before(now) {
			continue
		}
		payload, err := json.Marshal(map[string]any{
			"session_id":  s.ID,
			"member_id":   s.MemberID,
			"member_name": s.MemberName,
			"date":        s.Date,
			"start":       s.Start,
			"remind_at":   remindAt.Format(time.RFC3339),
		})
		if err != nil {
			h.logger.Error("failed to build reminder payload", "err", err)
			continue
		}
		if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
			AggregateType: "session",
			AggregateID:   s.ID,
			EventType:     "scheduling.reminder.requested.v1",
			Payload:       payload,
		}); err != nil {
			h.logger.Error("failed to enqueue reminder", "err", err)
		}
	}
}

func sessionView(s model.Session) sessionItem {
	end, err := timetable.AddMinutes(s.Start, s.DurationMinutes)
	if err != nil {
		end = s.Start
	}
	return sessionItem{
		SessionID:       s.ID,
		MemberID:        s.MemberID,
		MemberName:      s.MemberName,
		Date:            s.Date,
		Start:           s.Start,
		End:             end,
		DurationMinutes: s.DurationMinutes,
		CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
