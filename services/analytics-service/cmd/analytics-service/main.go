package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/corebuddy/studiocore/libs/config"
	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/libs/httpx"
	"github.com/corebuddy/studiocore/libs/inbox"
	"github.com/corebuddy/studiocore/libs/kafkax"
	otelx "github.com/corebuddy/studiocore/libs/otel"
	"github.com/corebuddy/studiocore/libs/runtime"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8088")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")

	consume := func(topic string, handler kafkax.Handler) {
		if brokers == "" {
			logger.Warn("kafka brokers not configured, consumer disabled", "topic", topic)
			return
		}
		c := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handler)
		go c.Run(ctx)
	}

	handleSessionEvent := func(ctx context.Context, msg kafka.Message, kind string) error {
		var payload struct {
			SessionID string `json:"session_id"`
			MemberID  string `json:"member_id"`
			Date      string `json:"date"`
			Start     string `json:"start"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid session payload", "err", err)
			return nil
		}
		if payload.SessionID == "" || payload.MemberID == "" || payload.Date == "" {
			logger.Error("missing session fields")
			return nil
		}
		if _, err := time.Parse("2006-01-02", payload.Date); err != nil {
			logger.Error("invalid session date", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)

		tx, err := pool.Begin(ctx)
		if err != nil {
			logger.Error("db begin failed", "err", err)
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_events (event_id, event_type, member_id, session_id, session_date)
			VALUES ($1, $2, $3, $4, $5::date)
			ON CONFLICT (event_id) DO NOTHING
		`, meta.EventID, meta.EventType, payload.MemberID, payload.SessionID, payload.Date)
		if err != nil {
			logger.Error("failed to insert booking event", "err", err)
			return err
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Commit(ctx)
			return nil
		}

		bookedInc := 0
		cancelledInc := 0
		if kind == "booked" {
			bookedInc = 1
		} else {
			cancelledInc = 1
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_booking_metrics (day, booked_count, cancelled_count)
			VALUES ($1::date, $2, $3)
			ON CONFLICT (day)
			DO UPDATE SET booked_count = daily_booking_metrics.booked_count + EXCLUDED.booked_count,
			              cancelled_count = daily_booking_metrics.cancelled_count + EXCLUDED.cancelled_count,
			              updated_at = now()
		`, payload.Date, bookedInc, cancelledInc); err != nil {
			logger.Error("failed to update daily metrics", "err", err)
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			logger.Error("failed to commit booking metric", "err", err)
			return err
		}

		logger.Info("booking metric recorded", "session_id", payload.SessionID, "event_type", meta.EventType)
		return nil
	}

	consume("scheduling.session.booked.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleSessionEvent(ctx, msg, "booked")
	})
	consume("scheduling.session.cancelled.v1", func(ctx context.Context, msg kafka.Message) error {
		return handleSessionEvent(ctx, msg, "cancelled")
	})

	consume("circuit.attendance.marked.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			Date       string `json:"date"`
			SlotNumber int    `json:"slot_number"`
			MemberID   string `json:"member_id"`
			Attended   *bool  `json:"attended"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid attendance payload", "err", err)
			return nil
		}
		if payload.Date == "" || payload.MemberID == "" || payload.Attended == nil {
			logger.Error("missing attendance fields")
			return nil
		}
		if _, err := time.Parse("2006-01-02", payload.Date); err != nil {
			logger.Error("invalid attendance date", "err", err)
			return nil
		}

		attendedInc := 0
		noShowInc := 0
		if *payload.Attended {
			attendedInc = 1
		} else {
			noShowInc = 1
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO daily_circuit_metrics (day, attended_count, no_show_count)
			VALUES ($1::date, $2, $3)
			ON CONFLICT (day)
			DO UPDATE SET attended_count = daily_circuit_metrics.attended_count + EXCLUDED.attended_count,
			              no_show_count = daily_circuit_metrics.no_show_count + EXCLUDED.no_show_count,
			              updated_at = now()
		`, payload.Date, attendedInc, noShowInc)
		if err != nil {
			logger.Error("failed to update circuit metrics", "err", err)
			return err
		}

		logger.Info("attendance metric recorded", "date", payload.Date, "member_id", payload.MemberID)
		return nil
	})

	consume("notification.reminder.dlq.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			SessionID   string `json:"session_id"`
			MemberID    string `json:"member_id"`
			RemindAt    string `json:"remind_at"`
			ErrorReason string `json:"error_reason"`
			FailedAt    string `json:"failed_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid dlq payload", "err", err)
			return nil
		}
		if payload.SessionID == "" || payload.MemberID == "" || payload.RemindAt == "" || payload.FailedAt == "" {
			logger.Error("missing dlq fields")
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO reminder_dlq_events (session_id, member_id, remind_at, error_reason, failed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, payload.SessionID, payload.MemberID, remindAt, payload.ErrorReason, payload.FailedAt)
		if err != nil {
			logger.Error("failed to write dlq event", "err", err)
			return err
		}

		logger.Warn("reminder dlq recorded", "session_id", payload.SessionID, "member_id", payload.MemberID)
		return nil
	})

	consume("auth.audit.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EventType string          `json:"event_type"`
			ActorID   string          `json:"actor_id"`
			Metadata  json.RawMessage `json:"metadata"`
			CreatedAt string          `json:"created_at"`
		}

		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid auth audit payload", "err", err)
			return nil
		}
		if payload.EventType == "" || payload.CreatedAt == "" {
			logger.Error("missing auth audit fields")
			return nil
		}
		if _, err := time.Parse(time.RFC3339, payload.CreatedAt); err != nil {
			logger.Error("invalid auth audit created_at", "err", err)
			return nil
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
			VALUES ($1, NULLIF($2, ''), $3, $4)
		`, payload.EventType, payload.ActorID, payload.Metadata, payload.CreatedAt)
		if err != nil {
			logger.Error("failed to write security audit event", "err", err)
			return err
		}

		logger.Info("security audit recorded", "event_type", payload.EventType)
		return nil
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
