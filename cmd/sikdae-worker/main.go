package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"sikdae/internal/amqp"
	"sikdae/internal/backend"
	"sikdae/internal/cache"
	"sikdae/internal/cli"
	"sikdae/internal/config"
	applog "sikdae/internal/log"
	"sikdae/internal/metrics"
	"sikdae/internal/services"
	"sikdae/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker, (*config.Config).ValidateWorker)
	logger.Info("Starting sikdae-worker", "backend", cfg.DataBackend)
	m := metrics.New()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	opener, err := backend.NewOpener(context.Background(), backendCfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize statement source", applog.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), time.Minute)
	amqpClient, err := amqp.NewClient(startCtx, cli.AMQPConfig(cfg))
	cancelStart()
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}

	svc, err := services.NewAnalysisService(services.Options{
		Policy:    cfg.Policy(),
		CacheSize: cfg.ReportCacheSize,
		CacheTTL:  cfg.ReportCacheTTL,
		Publisher: amqpClient,
		Metrics:   m,
	})
	if err != nil {
		logger.Error("Failed to initialize analysis service", applog.FieldError, err.Error())
		os.Exit(1)
	}
	caches := cache.NewManager()
	caches.Register(svc.Cache())

	// Probe and metrics endpoint for the orchestrator.
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !amqpClient.Healthy() {
			http.Error(w, "amqp connection closed", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	probe := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := probe.Shutdown(ctx); err != nil {
			logger.Warn("Probe server shutdown error", applog.FieldError, err.Error())
		}
		caches.Stop()
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err.Error())
		}
	})
	caches.StartCleanup(ctx, time.Minute)

	go func() {
		if err := probe.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Probe server error", applog.FieldError, err.Error(), "port", cfg.Port)
		}
	}()

	w := worker.NewAnalysisWorker(worker.Options{
		Analyzer:    svc,
		Opener:      opener,
		ReadTimeout: cfg.ReadTimeout,
		Logger:      logger,
		Metrics:     m,
	})
	if err := w.Run(ctx, amqpClient); err != nil {
		logger.Error("Message consumption failed", applog.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
