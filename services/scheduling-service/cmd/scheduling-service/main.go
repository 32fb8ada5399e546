package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/corebuddy/studiocore/libs/config"
	"github.com/corebuddy/studiocore/libs/db"
	"github.com/corebuddy/studiocore/libs/httpx"
	"github.com/corebuddy/studiocore/libs/inbox"
	"github.com/corebuddy/studiocore/libs/kafkax"
	otelx "github.com/corebuddy/studiocore/libs/otel"
	"github.com/corebuddy/studiocore/libs/outbox"
	"github.com/corebuddy/studiocore/libs/runtime"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/handlers"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/storage"
	"github.com/corebuddy/studiocore/services/scheduling-service/internal/timetable"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets
}

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8083")
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

	loc, err := time.LoadLocation(config.String("STUDIO_TIMEZONE", "Europe/London"))
	if err != nil {
		logger.Error("invalid studio timezone", "err", err)
		panic(err)
	}
	engine := timetable.NewEngine(timetable.TrainerWeek(), loc, time.Now).
		WithStep(config.Int("SLOT_STEP_MINUTES", timetable.DefaultStepMinutes))

	sessions := storage.NewSessionRepository(pool)
	schedule := storage.NewScheduleRepository(pool)
	reschedules := storage.NewRescheduleRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	offsets := parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		consumerCfg := kafkax.ConsumerConfig{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "scheduling-service"),
			Topic:   topic,
		}
		eventConsumer := kafkax.NewConsumer(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			// Billing fans out entitlement changes; scheduling enforces from this local cache.
			var payload struct {
				MemberID          string `json:"member_id"`
				Tier              string `json:"tier"`
				PurchasedSessions int    `json:"purchased_sessions"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.MemberID == "" || payload.Tier == "" {
				logger.Error("missing required event fields", "topic", msg.Topic)
				return nil
			}

			tx, err := pool.Begin(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback(ctx) }()

			if err := sessions.UpsertMemberEntitlements(ctx, tx, storage.MemberEntitlements{
				MemberID:          payload.MemberID,
				Tier:              payload.Tier,
				PurchasedSessions: payload.PurchasedSessions,
			}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		})
		go eventConsumer.Run(ctx)
	}
	startConsumer(config.String("KAFKA_CONSUME_TOPIC", "billing.subscription.activated.v1"))
	startConsumer(config.String("KAFKA_CONSUME_TOPIC_2", "billing.subscription.canceled.v1"))

	sessionHandler := handlers.NewSessionHandler(
		engine, sessions, schedule, reschedules, outboxRepo, logger,
		config.Int("DEFAULT_SESSION_MINUTES", 45), offsets,
	)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/slots", sessionHandler.Slots)
	mux.HandleFunc("/api/v1/sessions", sessionHandler.Create)
	mux.HandleFunc("/api/v1/sessions/list", sessionHandler.List)
	mux.HandleFunc("/api/v1/sessions/cancel", sessionHandler.Cancel)
	mux.HandleFunc("/api/v1/holidays", sessionHandler.Holidays)
	mux.HandleFunc("/api/v1/overrides", sessionHandler.Overrides)
	mux.HandleFunc("/api/v1/reschedules", sessionHandler.CreateReschedule)
	mux.HandleFunc("/api/v1/reschedules/pending", sessionHandler.ListReschedules)
	mux.HandleFunc("/api/v1/reschedules/respond", sessionHandler.RespondReschedule)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
