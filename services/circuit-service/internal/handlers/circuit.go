package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/corebuddy/studiocore/libs/outbox"
	"github.com/corebuddy/studiocore/services/circuit-service/internal/model"
	"github.com/corebuddy/studiocore/services/circuit-service/internal/roster"
	"github.com/corebuddy/studiocore/services/circuit-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// CircuitHandler owns the class roster surface: session load (with lazy
// creation and VIP auto-fill), slot booking/release, the waitlist, attendance
// marking and the strike/ban admin operations. All roster mutations run as a
// locked read-modify-write on the session row.
type CircuitHandler struct {
	circuits   *storage.CircuitRepository
	members    *storage.MemberRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
}

func NewCircuitHandler(
	circuits *storage.CircuitRepository,
	members *storage.MemberRepository,
	outboxRepo *outbox.Repository,
	logger *slog.Logger,
	loc *time.Location,
	now func() time.Time,
) *CircuitHandler {
	if now == nil {
		now = time.Now
	}
	return &CircuitHandler{
		circuits:   circuits,
		members:    members,
		outboxRepo: outboxRepo,
		logger:     logger,
		loc:        loc,
		now:        now,
	}
}

type slotRequest struct {
	Date       string `json:"date"`
	SlotNumber int    `json:"slot_number"`
	MemberID   string `json:"member_id"`
}

type releaseRequest struct {
	Date       string `json:"date"`
	SlotNumber int    `json:"slot_number"`
	MemberID   string `json:"member_id"`
	Admin      bool   `json:"admin"`
}

type attendanceRequest struct {
	Date       string `json:"date"`
	SlotNumber int    `json:"slot_number"`
	Attended   bool   `json:"attended"`
}

type memberRequest struct {
	MemberID string `json:"member_id"`
}

// Session returns the roster for a date, creating it on first view. Creation
// seats VIP members into open slots unless they opted out for the date.
func (h *CircuitHandler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	s, err := h.circuits.GetSession(ctx, date)
	if err == nil {
		writeJSON(w, http.StatusOK, s)
		return
	}
	if !storage.IsNotFound(err) {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	tx, err := h.circuits.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err = h.loadOrCreate(ctx, tx, date)
	if err != nil {
		h.writeRosterError(w, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Book claims a numbered slot for a member.
func (h *CircuitHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Date == "" || req.MemberID == "" || req.SlotNumber == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	h.mutate(w, r, req.Date, func(ctx context.Context, tx pgx.Tx, s *model.CircuitSession) error {
		m, err := h.members.Get(ctx, req.MemberID)
		if err != nil {
			return err
		}
		return roster.Book(s, req.SlotNumber, m, h.now())
	})
}

// JoinWaitlist queues a member once every slot is confirmed.
func (h *CircuitHandler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date     string `json:"date"`
		MemberID string `json:"member_id"`
	}
	if !decodePost(w, r, &req) {
		return
	}
	if req.Date == "" || req.MemberID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	h.mutate(w, r, req.Date, func(ctx context.Context, tx pgx.Tx, s *model.CircuitSession) error {
		m, err := h.members.Get(ctx, req.MemberID)
		if err != nil {
			return err
		}
		return roster.JoinWaitlist(s, m, h.now())
	})
}

// Release frees a member's slot, promoting the waitlist head when present.
// Members are held to the 24-hour notice window; the admin flag bypasses it.
func (h *CircuitHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Date == "" || req.MemberID == "" || req.SlotNumber == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	h.mutate(w, r, req.Date, func(ctx context.Context, tx pgx.Tx, s *model.CircuitSession) error {
		promoted, err := roster.Release(s, req.SlotNumber, req.MemberID, h.now(), h.loc, req.Admin)
		if err != nil {
			return err
		}
		if promoted != nil {
			return h.emit(ctx, tx, "circuit.slot.promoted.v1", s.Date, map[string]any{
				"date":        s.Date,
				"start":       s.Start,
				"slot_number": req.SlotNumber,
				"member_id":   promoted.MemberID,
				"member_name": promoted.MemberName,
			})
		}
		return nil
	})
}

// Assign is the trainer seating a member directly, skipping ban and deadline
// rules.
func (h *CircuitHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Date == "" || req.MemberID == "" || req.SlotNumber == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	h.mutate(w, r, req.Date, func(ctx context.Context, tx pgx.Tx, s *model.CircuitSession) error {
		m, err := h.members.Get(ctx, req.MemberID)
		if err != nil {
			return err
		}
		return roster.Assign(s, req.SlotNumber, m, h.now())
	})
}

// Attendance records the register for one slot. A no-show adds a strike to the
// slot holder; the third strike bans them for a calendar month.
func (h *CircuitHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.Date == "" || req.SlotNumber == 0 {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	h.mutate(w, r, req.Date, func(ctx context.Context, tx pgx.Tx, s *model.CircuitSession) error {
		slot, err := roster.MarkAttendance(s, req.SlotNumber, req.Attended)
		if err != nil {
			return err
		}
		if err := h.emit(ctx, tx, "circuit.attendance.marked.v1", s.Date, map[string]any{
			"date":        s.Date,
			"slot_number": slot.Number,
			"member_id":   slot.MemberID,
			"attended":    req.Attended,
		}); err != nil {
			return err
		}
		if req.Attended {
			return nil
		}

		m, err := h.members.GetForUpdate(ctx, tx, slot.MemberID)
		if err != nil {
			return err
		}
		at := h.now()
		banned := roster.ApplyStrike(&m, at)
		if err := h.members.SaveDiscipline(ctx, tx, m); err != nil {
			return err
		}
		if banned {
			return h.emit(ctx, tx, "circuit.member.banned.v1", m.ID, map[string]any{
				"member_id":   m.ID,
				"member_name": m.Name,
				"ban_until":   m.CircuitBanUntil.Format(time.RFC3339),
			})
		}
		return nil
	})
}

// ResetStrikes zeroes a member's strike counter; any active ban stays.
func (h *CircuitHandler) ResetStrikes(w http.ResponseWriter, r *http.Request) {
	h.discipline(w, r, roster.ResetStrikes)
}

// LiftBan clears an active ban and the counter.
func (h *CircuitHandler) LiftBan(w http.ResponseWriter, r *http.Request) {
	h.discipline(w, r, roster.LiftBan)
}

func (h *CircuitHandler) discipline(w http.ResponseWriter, r *http.Request, apply func(*model.Member)) {
	var req memberRequest
	if !decodePost(w, r, &req) {
		return
	}
	if req.MemberID == "" {
		http.Error(w, "member_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.circuits.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := h.members.GetForUpdate(ctx, tx, req.MemberID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "member not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	apply(&m)
	if err := h.members.SaveDiscipline(ctx, tx, m); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// mutate runs fn against the locked session row for date, creating the row
// lazily, and writes the updated roster back on success.
func (h *CircuitHandler) mutate(w http.ResponseWriter, r *http.Request, date string, fn func(context.Context, pgx.Tx, *model.CircuitSession) error) {
	ctx := r.Context()
	tx, err := h.circuits.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := h.loadOrCreate(ctx, tx, date)
	if err != nil {
		h.writeRosterError(w, err)
		return
	}
	if err := fn(ctx, tx, s); err != nil {
		h.writeRosterError(w, err)
		return
	}
	if err := h.circuits.SaveSession(ctx, tx, s); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

var errNoClass = errors.New("no circuit class runs on this date")

// loadOrCreate returns the session row FOR UPDATE, building it on first
// access. A new roster is only created for dates a class actually runs on,
// and VIPs are seated immediately.
func (h *CircuitHandler) loadOrCreate(ctx context.Context, tx pgx.Tx, date string) (*model.CircuitSession, error) {
	s, err := h.circuits.GetSessionForUpdate(ctx, tx, date)
	if err == nil {
		return s, nil
	}
	if !storage.IsNotFound(err) {
		return nil, err
	}

	day, err := time.ParseInLocation("2006-01-02", date, h.loc)
	if err != nil {
		return nil, errNoClass
	}
	start, end, ok := roster.ClassTimes(day.Weekday())
	if !ok {
		return nil, errNoClass
	}

	s = roster.NewSession(date, start, end)
	vips, err := h.members.ListVIPs(ctx)
	if err != nil {
		return nil, err
	}
	roster.AutoFillVIPs(s, vips, h.now())

	if err := h.circuits.CreateSession(ctx, tx, s); err != nil {
		if storage.IsDuplicate(err) {
			return h.circuits.GetSessionForUpdate(ctx, tx, date)
		}
		return nil, err
	}
	return s, nil
}

func (h *CircuitHandler) emit(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "circuit_session",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

func (h *CircuitHandler) writeRosterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNoClass):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, roster.ErrNoSuchSlot):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, roster.ErrSlotTaken),
		errors.Is(err, roster.ErrAlreadyBooked),
		errors.Is(err, roster.ErrOnWaitlist):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, roster.ErrInsideDeadline),
		errors.Is(err, roster.ErrSlotsOpen):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, roster.ErrMemberBanned),
		errors.Is(err, roster.ErrNotSlotHolder):
		http.Error(w, err.Error(), http.StatusForbidden)
	case storage.IsNotFound(err):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.logger.Error("circuit operation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodePost(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
