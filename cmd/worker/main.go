package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/conversational-search/internal/bootstrap"
	"github.com/kirillkom/conversational-search/internal/config"
	"github.com/kirillkom/conversational-search/internal/core/domain"
	"github.com/kirillkom/conversational-search/internal/core/usecase"
	"github.com/kirillkom/conversational-search/internal/observability/logging"
	"github.com/kirillkom/conversational-search/internal/observability/metrics"
)

const serviceName = "cqr-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	retrievalMetrics := metrics.NewRetrievalMetrics(serviceName, workerMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:    logger,
		Observer:  retrievalMetrics,
		WithQueue: true,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	batchTimeout := time.Duration(cfg.WorkerBatchTimeoutSec) * time.Second
	if batchTimeout <= 0 {
		batchTimeout = time.Hour
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSTopicsSubject, "results_subject", cfg.NATSResultsSubject)
	err = app.Queue.SubscribeTopics(ctx, func(handlerCtx context.Context, topics []domain.Topic) error {
		retriever, err := app.NewRetriever()
		if err != nil {
			return err
		}
		runCtx, cancel := context.WithTimeout(handlerCtx, batchTimeout)
		defer cancel()

		workerMetrics.StartBatch()
		summary, err := usecase.NewBatchRunner(retriever, logger).Run(runCtx, topics, app.Queue)
		workerMetrics.FinishBatch(serviceName, summary.Turns, summary.Failed, summary.Duration, err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
