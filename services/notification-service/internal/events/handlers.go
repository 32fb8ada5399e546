package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/libs/kafkax"
	"github.com/corebuddy/studiocore/services/notification-service/internal/feed"
	"github.com/corebuddy/studiocore/services/notification-service/internal/jobs"
	"github.com/corebuddy/studiocore/services/notification-service/internal/push"
	"github.com/corebuddy/studiocore/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

// Projector turns platform events into feed entries, push sends, contact
// projections and scheduled reminder jobs.
type Projector struct {
	pool   *db.Pool
	jobs   *jobs.Repository
	store  *storage.Repository
	feed   *feed.Repository
	tokens *push.TokenRepository
	pushes push.Sender
	logger *slog.Logger
}

func NewProjector(pool *db.Pool, jobsRepo *jobs.Repository, store *storage.Repository, feedRepo *feed.Repository, tokens *push.TokenRepository, pushes push.Sender, logger *slog.Logger) *Projector {
	return &Projector{
		pool:   pool,
		jobs:   jobsRepo,
		store:  store,
		feed:   feedRepo,
		tokens: tokens,
		pushes: pushes,
		logger: logger,
	}
}

// Handlers maps consumed topics to their handler funcs.
func (p *Projector) Handlers() map[string]kafkax.Handler {
	return map[string]kafkax.Handler{
		"scheduling.reminder.requested.v1":   p.reminderRequested,
		"scheduling.session.booked.v1":       p.sessionBooked,
		"scheduling.session.cancelled.v1":    p.sessionCancelled,
		"scheduling.reschedule.responded.v1": p.rescheduleResponded,
		"circuit.slot.promoted.v1":           p.slotPromoted,
		"circuit.member.banned.v1":           p.memberBanned,
		"billing.subscription.activated.v1":  p.subscriptionActivated,
		"auth.member.registered.v1":          p.memberRegistered,
	}
}

type sessionEvent struct {
	SessionID  string `json:"session_id"`
	MemberID   string `json:"member_id"`
	MemberName string `json:"member_name"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	RemindAt   string `json:"remind_at"`
}

func (p *Projector) reminderRequested(ctx context.Context, msg kafka.Message) error {
	var evt sessionEvent
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.SessionID == "" || evt.MemberID == "" || evt.RemindAt == "" {
		p.logger.Error("missing required event fields", "topic", msg.Topic)
		return nil
	}
	remindAt, err := time.Parse(time.RFC3339, evt.RemindAt)
	if err != nil {
		p.logger.Error("invalid remind_at", "err", err, "topic", msg.Topic)
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = p.jobs.Insert(ctx, tx, jobs.Job{
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", evt.SessionID, evt.MemberID, evt.RemindAt),
		SessionID:      evt.SessionID,
		MemberID:       evt.MemberID,
		RemindAt:       remindAt,
		TemplateData: map[string]any{
			"member_name": evt.MemberName,
			"date":        evt.Date,
			"start":       evt.Start,
		},
	})
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Projector) sessionBooked(ctx context.Context, msg kafka.Message) error {
	var evt sessionEvent
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.MemberID == "" {
		return nil
	}
	entry := feed.Entry{
		MemberID: evt.MemberID,
		Kind:     "session_booked",
		Title:    "Booking confirmed",
		Body:     fmt.Sprintf("Your session on %s at %s is booked.", evt.Date, evt.Start),
		RefID:    evt.SessionID,
	}
	if err := p.feed.Insert(ctx, entry); err != nil {
		return err
	}
	p.pushToMember(ctx, evt.MemberID, push.Message{
		Title: entry.Title,
		Body:  entry.Body,
		Data:  map[string]string{"session_id": evt.SessionID},
	})
	return nil
}

func (p *Projector) sessionCancelled(ctx context.Context, msg kafka.Message) error {
	var evt sessionEvent
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.MemberID == "" {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := p.jobs.CancelForSession(ctx, tx, evt.SessionID, evt.MemberID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	return p.feed.Insert(ctx, feed.Entry{
		MemberID: evt.MemberID,
		Kind:     "session_cancelled",
		Title:    "Booking cancelled",
		Body:     fmt.Sprintf("Your session on %s at %s was cancelled.", evt.Date, evt.Start),
		RefID:    evt.SessionID,
	})
}

type rescheduleEvent struct {
	RequestID      string `json:"request_id"`
	SessionID      string `json:"session_id"`
	MemberID       string `json:"member_id"`
	RequestedDate  string `json:"requested_date"`
	RequestedStart string `json:"requested_start"`
	Status         string `json:"status"`
}

// rescheduleFeedEntry renders the member-facing entry for a responded
// reschedule request. Status is "approved" or "rejected".
func rescheduleFeedEntry(evt rescheduleEvent) feed.Entry {
	title := "Reschedule declined"
	body := fmt.Sprintf("Your request to move to %s at %s was declined.", evt.RequestedDate, evt.RequestedStart)
	if evt.Status == "approved" {
		title = "Reschedule approved"
		body = fmt.Sprintf("Your session moved to %s at %s.", evt.RequestedDate, evt.RequestedStart)
	}
	return feed.Entry{
		MemberID: evt.MemberID,
		Kind:     "reschedule_" + evt.Status,
		Title:    title,
		Body:     body,
		RefID:    evt.RequestID,
	}
}

func (p *Projector) rescheduleResponded(ctx context.Context, msg kafka.Message) error {
	var evt rescheduleEvent
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.MemberID == "" {
		return nil
	}
	return p.feed.Insert(ctx, rescheduleFeedEntry(evt))
}

func (p *Projector) slotPromoted(ctx context.Context, msg kafka.Message) error {
	var evt struct {
		Date       string `json:"date"`
		Start      string `json:"start"`
		SlotNumber int    `json:"slot_number"`
		MemberID   string `json:"member_id"`
		MemberName string `json:"member_name"`
	}
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.MemberID == "" {
		return nil
	}

	title := "You're in!"
	body := fmt.Sprintf("A slot opened up: you're booked into circuits on %s at %s (slot %d).", evt.Date, evt.Start, evt.SlotNumber)
	if err := p.feed.Insert(ctx, feed.Entry{
		MemberID: evt.MemberID,
		Kind:     "circuit_promoted",
		Title:    title,
		Body:     body,
		RefID:    evt.Date,
	}); err != nil {
		return err
	}
	p.pushToMember(ctx, evt.MemberID, push.Message{
		Title: title,
		Body:  body,
		Data:  map[string]string{"date": evt.Date, "start": evt.Start},
	})
	return nil
}

func (p *Projector) memberBanned(ctx context.Context, msg kafka.Message) error {
	var evt struct {
		MemberID string `json:"member_id"`
		BanUntil string `json:"ban_until"`
	}
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.MemberID == "" {
		return nil
	}

	until := evt.BanUntil
	if t, err := time.Parse(time.RFC3339, evt.BanUntil); err == nil {
		until = t.Format("2 January 2006")
	}
	return p.feed.Insert(ctx, feed.Entry{
		MemberID: evt.MemberID,
		Kind:     "circuit_banned",
		Title:    "Circuits booking suspended",
		Body:     fmt.Sprintf("Repeated no-shows have suspended your circuits booking until %s.", until),
	})
}

func (p *Projector) subscriptionActivated(ctx context.Context, msg kafka.Message) error {
	var evt struct {
		MemberID string `json:"member_id"`
		Tier     string `json:"tier"`
		Status   string `json:"status"`
	}
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.MemberID == "" || evt.Tier == "" {
		return nil
	}
	return p.feed.Insert(ctx, feed.Entry{
		MemberID: evt.MemberID,
		Kind:     "subscription_activated",
		Title:    "Membership updated",
		Body:     fmt.Sprintf("Your %s membership is now %s.", evt.Tier, evt.Status),
	})
}

func (p *Projector) memberRegistered(ctx context.Context, msg kafka.Message) error {
	var evt struct {
		MemberID string `json:"member_id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
	}
	if !p.decode(msg, &evt) {
		return nil
	}
	if evt.MemberID == "" {
		return nil
	}
	return p.store.UpsertContact(ctx, storage.Contact{
		MemberID: evt.MemberID,
		Name:     evt.Name,
		Email:    evt.Email,
	})
}

// pushToMember is best effort: a dead push provider must not block the feed.
func (p *Projector) pushToMember(ctx context.Context, memberID string, msg push.Message) {
	tokens, err := p.tokens.TokensForMember(ctx, memberID)
	if err != nil {
		p.logger.Warn("token lookup failed", "err", err, "member_id", memberID)
		return
	}
	var dead []string
	for _, token := range tokens {
		err := p.pushes.Send(ctx, token, msg)
		switch {
		case err == nil:
		case errors.Is(err, push.ErrTokenInvalid):
			dead = append(dead, token)
		default:
			p.logger.Warn("push send failed", "err", err, "member_id", memberID)
		}
	}
	if err := p.tokens.Prune(ctx, dead); err != nil {
		p.logger.Warn("token prune failed", "err", err)
	}
}

func (p *Projector) decode(msg kafka.Message, v any) bool {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		p.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return false
	}
	return true
}
