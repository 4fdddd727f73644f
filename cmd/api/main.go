package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/conversational-search/internal/adapters/http"
	"github.com/kirillkom/conversational-search/internal/bootstrap"
	"github.com/kirillkom/conversational-search/internal/config"
	"github.com/kirillkom/conversational-search/internal/core/usecase"
	"github.com/kirillkom/conversational-search/internal/observability/logging"
	"github.com/kirillkom/conversational-search/internal/observability/metrics"
)

const serviceName = "cqr-api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	retrievalMetrics := metrics.NewRetrievalMetrics(serviceName, httpMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:   logger,
		Observer: retrievalMetrics,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	sessions := usecase.NewSessionRegistry(app.NewRetriever, cfg.SessionMaxActive, logger)
	go expireIdleSessions(ctx, sessions, httpMetrics, time.Duration(cfg.SessionIdleTimeoutSeconds)*time.Second)

	router := httpadapter.NewRouter(cfg, sessions, httpadapter.RouterOptions{
		Service: serviceName,
		Metrics: httpMetrics,
		Ready:   app.Ready,
	}).Handler()
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("api_listen_failed", "port", cfg.APIPort, "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}

func expireIdleSessions(ctx context.Context, sessions *usecase.SessionRegistry, m *metrics.HTTPServerMetrics, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(max(maxIdle/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for range sessions.ExpireIdle(maxIdle) {
				m.RecordSessionFinished(serviceName, "expired")
			}
		}
	}
}
