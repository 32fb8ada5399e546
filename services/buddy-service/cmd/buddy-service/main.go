package main

import (
	"context"
	"net/http"
	"time"

	"github.com/corebuddy/studiocore/libs/config"
	"github.com/corebuddy/studiocore/libs/httpx"
	otelx "github.com/corebuddy/studiocore/libs/otel"
	"github.com/corebuddy/studiocore/libs/runtime"
	"github.com/corebuddy/studiocore/services/buddy-service/internal/chat"
	"github.com/corebuddy/studiocore/services/buddy-service/internal/handlers"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "buddy-service")
	port, err := config.Port("PORT", "8087")
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

	chatClient := chat.NewClient(
		config.String("CHAT_UPSTREAM_URL", ""),
		config.String("CHAT_API_KEY", ""),
		config.String("CHAT_MODEL", ""),
	)
	buddyHandler := handlers.NewBuddyHandler(chatClient, logger)

	// Stateless service: readiness is liveness.
	mux := runtime.NewBaseMuxWithReady()
	mux.HandleFunc("/api/v1/buddy/chat", buddyHandler.Chat)
	mux.HandleFunc("/api/v1/buddy/macros", buddyHandler.Macros)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "buddy")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// No WriteTimeout: chat responses stream for as long as the upstream does.
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
