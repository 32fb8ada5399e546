package main

import (
	"context"
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
	"github.com/corebuddy/studiocore/services/notification-service/internal/email"
	"github.com/corebuddy/studiocore/services/notification-service/internal/events"
	"github.com/corebuddy/studiocore/services/notification-service/internal/feed"
	"github.com/corebuddy/studiocore/services/notification-service/internal/handlers"
	"github.com/corebuddy/studiocore/services/notification-service/internal/jobs"
	"github.com/corebuddy/studiocore/services/notification-service/internal/push"
	"github.com/corebuddy/studiocore/services/notification-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8086")
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
	store := storage.NewRepository(pool)
	feedRepo := feed.NewRepository(pool)
	tokenRepo := push.NewTokenRepository(pool)
	jobsRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@corebuddy.studio")
	emailSender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	pushProvider := strings.ToLower(config.String("PUSH_PROVIDER", "noop"))
	var pushSender push.Sender
	switch pushProvider {
	case "webhook":
		pushSender = push.NewWebhookSender(
			config.String("PUSH_WEBHOOK_URL", ""),
			config.String("PUSH_WEBHOOK_TOKEN", ""),
		)
	default:
		pushSender = push.NewNoopSender()
	}

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	projector := events.NewProjector(pool, jobsRepo, store, feedRepo, tokenRepo, pushSender, logger)
	if strings.TrimSpace(brokers) != "" {
		for topic, handler := range projector.Handlers() {
			c := kafkax.NewConsumer(logger, inboxRepo, kafkax.ConsumerConfig{
				Brokers: brokers,
				GroupID: groupID,
				Topic:   topic,
			}, handler)
			go c.Run(ctx)
		}
	}

	worker := jobs.NewWorker(pool, jobsRepo, store, tokenRepo, pushSender, emailSender, outboxRepo, logger, jobs.WorkerConfig{
		Interval:  time.Duration(config.Int("REMINDER_POLL_INTERVAL_SECONDS", 2)) * time.Second,
		BatchSize: 50,
		Backoff:   time.Duration(config.Int("REMINDER_RETRY_BACKOFF_SECONDS", 60)) * time.Second,
	})
	go worker.Run(ctx)

	// Feed housekeeping; frequency is uncritical, ListActive filters by age anyway.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := feedRepo.PurgeExpired(ctx, time.Now()); err != nil {
					logger.Error("feed purge failed", "err", err)
				} else if n > 0 {
					logger.Info("feed entries purged", "count", n)
				}
			}
		}
	}()

	notificationHandler := handlers.NewNotificationHandler(tokenRepo, feedRepo, logger, time.Now)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/notifications/tokens", notificationHandler.RegisterToken)
	mux.HandleFunc("/api/v1/notifications/tokens/remove", notificationHandler.RemoveToken)
	mux.HandleFunc("/api/v1/notifications/feed", notificationHandler.Feed)
	mux.HandleFunc("/api/v1/notifications/feed/dismiss", notificationHandler.DismissFeedEntry)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
