package main

import (
	"context"
	"encoding/json"
	"net/http"
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
	"github.com/corebuddy/studiocore/services/circuit-service/internal/handlers"
	"github.com/corebuddy/studiocore/services/circuit-service/internal/model"
	"github.com/corebuddy/studiocore/services/circuit-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "circuit-service")
	port, err := config.Port("PORT", "8084")
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

	circuits := storage.NewCircuitRepository(pool)
	members := storage.NewMemberRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	// The member directory is projected from auth events so roster checks
	// never call across services.
	inboxRepo := inbox.NewRepository(pool)
	memberTopic := config.String("KAFKA_CONSUME_TOPIC", "auth.member.registered.v1")
	if strings.TrimSpace(memberTopic) != "" {
		consumerCfg := kafkax.ConsumerConfig{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "circuit-service"),
			Topic:   memberTopic,
		}
		memberConsumer := kafkax.NewConsumer(logger, inboxRepo, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				MemberID   string `json:"member_id"`
				Name       string `json:"name"`
				MemberType string `json:"member_type"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
				return nil
			}
			if payload.MemberID == "" || payload.MemberType == "" {
				logger.Error("missing required event fields", "topic", msg.Topic)
				return nil
			}
			return members.Upsert(ctx, model.Member{
				ID:   payload.MemberID,
				Name: payload.Name,
				Type: payload.MemberType,
			})
		})
		go memberConsumer.Run(ctx)
	}

	circuitHandler := handlers.NewCircuitHandler(circuits, members, outboxRepo, logger, loc, time.Now)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/circuit/session", circuitHandler.Session)
	mux.HandleFunc("/api/v1/circuit/book", circuitHandler.Book)
	mux.HandleFunc("/api/v1/circuit/waitlist", circuitHandler.JoinWaitlist)
	mux.HandleFunc("/api/v1/circuit/release", circuitHandler.Release)
	mux.HandleFunc("/api/v1/circuit/assign", circuitHandler.Assign)
	mux.HandleFunc("/api/v1/circuit/attendance", circuitHandler.Attendance)
	mux.HandleFunc("/api/v1/circuit/strikes/reset", circuitHandler.ResetStrikes)
	mux.HandleFunc("/api/v1/circuit/ban/lift", circuitHandler.LiftBan)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "circuit")
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
