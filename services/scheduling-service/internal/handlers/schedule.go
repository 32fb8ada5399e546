package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/corebuddy/studiocore/services/scheduling-service/internal/model"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/storage"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/timetable"
	"github.com/google/uuid"
)

// Holidays handles the admin holiday surface: POST adds, DELETE removes,
// GET lists a range.
func (h *SessionHandler) Holidays(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Date string `json:"date"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Date = strings.TrimSpace(req.Date)
		if _, err := timetable.ParseDateKey(req.Date, h.engine.Location()); err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		holiday := model.Holiday{ID: uuid.NewString(), Date: req.Date}
		if err := h.schedule.AddHoliday(r.Context(), holiday); err != nil {
			if storage.IsDuplicate(err) {
				http.Error(w, "holiday already exists", http.StatusConflict)
				return
			}
			http.Error(w, "failed to add holiday", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": holiday.ID, "date": holiday.Date})

	case http.MethodDelete:
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			http.Error(w, "date required", http.StatusBadRequest)
			return
		}
		if err := h.schedule.RemoveHoliday(r.Context(), date); err != nil {
			http.Error(w, "failed to remove holiday", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		from := strings.TrimSpace(r.URL.Query().Get("from"))
		to := strings.TrimSpace(r.URL.Query().Get("to"))
		if from == "" || to == "" {
			http.Error(w, "from and to are required", http.StatusBadRequest)
			return
		}
		set, err := h.schedule.HolidaySet(r.Context(), from, to)
		if err != nil {
			http.Error(w, "failed to list holidays", http.StatusInternalServerError)
			return
		}
		dates := make([]string, 0, len(set))
		for d := range set {
			dates = append(dates, d)
		}
		writeJSON(w, http.StatusOK, dates)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Overrides handles per-date tick exceptions. Kind "blocked" removes a tick
// from a normal day; "opened" adds one to a default-blocked day.
func (h *SessionHandler) Overrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Date  string `json:"date"`
			Start string `json:"start"`
			Kind  string `json:"kind"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		kind := model.OverrideKind(strings.TrimSpace(req.Kind))
		if kind != model.OverrideBlocked && kind != model.OverrideOpened {
			http.Error(w, "kind must be blocked or opened", http.StatusBadRequest)
			return
		}
		req.Date = strings.TrimSpace(req.Date)
		req.Start = strings.TrimSpace(req.Start)
		if _, err := timetable.ParseDateKey(req.Date, h.engine.Location()); err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		if _, err := timetable.MinuteOfDay(req.Start); err != nil {
			http.Error(w, "invalid start", http.StatusBadRequest)
			return
		}
		o := model.Override{ID: uuid.NewString(), Date: req.Date, Start: req.Start, Kind: kind}
		if err := h.schedule.AddOverride(r.Context(), o); err != nil {
			http.Error(w, "failed to add override", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": o.ID})

	case http.MethodDelete:
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		start := strings.TrimSpace(r.URL.Query().Get("start"))
		kind := model.OverrideKind(strings.TrimSpace(r.URL.Query().Get("kind")))
		if date == "" || start == "" || (kind != model.OverrideBlocked && kind != model.OverrideOpened) {
			http.Error(w, "date, start and kind required", http.StatusBadRequest)
			return
		}
		if err := h.schedule.RemoveOverride(r.Context(), date, start, kind); err != nil {
			http.Error(w, "failed to remove override", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			http.Error(w, "date required", http.StatusBadRequest)
			return
		}
		blocked, opened, err := h.schedule.OverridesForDate(r.Context(), date)
		if err != nil {
			http.Error(w, "failed to list overrides", http.StatusInternalServerError)
			return
		}
		resp := map[string][]string{"blocked": {}, "opened": {}}
		for t := range blocked {
			resp["blocked"] = append(resp["blocked"], t)
		}
		for t := range opened {
			resp["opened"] = append(resp["opened"], t)
		}
		writeJSON(w, http.StatusOK, resp)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
