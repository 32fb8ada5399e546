package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corebuddy/studiocore/libs/db"
	otelx "github.com/corebuddy/studiocore/libs/otel"
	"github.com/corebuddy/studiocore/libs/outbox"
	"github.com/corebuddy/studiocore/services/notification-service/internal/email"
	"github.com/corebuddy/studiocore/services/notification-service/internal/push"
	"github.com/corebuddy/studiocore/services/notification-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Worker drains due reminder jobs and delivers them over push and email.
// Delivery counts as success when at least one channel got through; the job
// retries with backoff otherwise and dead-letters at max attempts.
type Worker struct {
	pool      *db.Pool
	repo      *Repository
	store     *storage.Repository
	tokens    *push.TokenRepository
	pushes    push.Sender
	mail      email.Sender
	outbox    *outbox.Repository
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *db.Pool, repo *Repository, store *storage.Repository, tokens *push.TokenRepository, pushes push.Sender, mail email.Sender, outboxRepo *outbox.Repository, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		pool:      pool,
		repo:      repo,
		store:     store,
		tokens:    tokens,
		pushes:    pushes,
		mail:      mail,
		outbox:    outboxRepo,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var ids []int64
	var failed []Job
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		if err := w.deliver(jobCtx, job); err != nil {
			w.logger.Warn("reminder delivery failed", "job_id", job.ID, "member_id", job.MemberID, "err", err)
			failed = append(failed, job)
			continue
		}
		ids = append(ids, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, ids); err != nil {
		return err
	}

	for _, job := range failed {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		nextRunAt := time.Now().UTC().Add(w.backoff)
		attempts := job.Attempts + 1
		if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, nextRunAt, "delivery failed"); err != nil {
			return err
		}

		if attempts >= job.MaxAttempts {
			if err := w.enqueueDLQ(jobCtx, tx, job, "max attempts reached"); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (w *Worker) deliver(ctx context.Context, job Job) error {
	msg := reminderMessage(job)
	delivered := 0

	tokens, err := w.tokens.TokensForMember(ctx, job.MemberID)
	if err != nil {
		return err
	}
	var dead []string
	for _, token := range tokens {
		err := w.pushes.Send(ctx, token, msg)
		status := "sent"
		switch {
		case errors.Is(err, push.ErrTokenInvalid):
			dead = append(dead, token)
			status = "token_invalid"
		case err != nil:
			status = "failed"
		default:
			delivered++
		}
		w.logDelivery(ctx, job, "push", token, status)
	}
	if err := w.tokens.Prune(ctx, dead); err != nil {
		w.logger.Warn("token prune failed", "err", err)
	}

	contact, err := w.store.GetContact(ctx, job.MemberID)
	switch {
	case storage.IsNotFound(err):
		// No contact projected yet; push is the only channel.
	case err != nil:
		return err
	case contact.Email != "":
		err := w.mail.Send(contact.Email, msg.Title, msg.Body)
		status := "sent"
		if err != nil {
			status = "failed"
		} else {
			delivered++
		}
		w.logDelivery(ctx, job, "email", contact.Email, status)
	}

	if delivered == 0 {
		return errors.New("no channel delivered")
	}
	return nil
}

func reminderMessage(job Job) push.Message {
	date, _ := job.TemplateData["date"].(string)
	start, _ := job.TemplateData["start"].(string)
	return push.Message{
		Title: "Session reminder",
		Body:  fmt.Sprintf("Your session on %s at %s is coming up.", date, start),
		Data: map[string]string{
			"session_id": job.SessionID,
			"date":       date,
			"start":      start,
		},
	}
}

func (w *Worker) logDelivery(ctx context.Context, job Job, channel string, recipient string, status string) {
	err := w.store.Insert(ctx, storage.Notification{
		SessionID: job.SessionID,
		MemberID:  job.MemberID,
		Channel:   channel,
		Recipient: recipient,
		Payload:   job.TemplateData,
		Status:    status,
	})
	if err != nil {
		w.logger.Warn("notification log insert failed", "err", err)
	}
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, reason string) error {
	payload, err := json.Marshal(map[string]any{
		"session_id":    job.SessionID,
		"member_id":     job.MemberID,
		"remind_at":     job.RemindAt.UTC().Format(time.RFC3339),
		"template_data": job.TemplateData,
		"error_reason":  reason,
		"failed_at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "reminder_job",
		AggregateID:   job.SessionID,
		EventType:     "notification.reminder.dlq.v1",
		Payload:       payload,
	})
}
