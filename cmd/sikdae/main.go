package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"sikdae/internal/amqp"
	"sikdae/internal/cache"
	"sikdae/internal/cli"
	"sikdae/internal/config"
	apphttp "sikdae/internal/http"
	applog "sikdae/internal/log"
	"sikdae/internal/metrics"
	"sikdae/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp, (*config.Config).Validate)
	m := metrics.New()

	var (
		publisher   services.Publisher
		amqpClient  *amqp.Client
		readyChecks = map[string]apphttp.ReadyCheck{}
	)
	if cfg.AMQPEnabled() {
		startCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		client, err := amqp.NewClient(startCtx, cli.AMQPConfig(cfg))
		cancel()
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		amqpClient, publisher = client, client
		readyChecks["amqp"] = func(context.Context) error {
			if !client.Healthy() {
				return errors.New("connection closed")
			}
			return nil
		}
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPResultQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	svc, err := services.NewAnalysisService(services.Options{
		Policy:    cfg.Policy(),
		CacheSize: cfg.ReportCacheSize,
		CacheTTL:  cfg.ReportCacheTTL,
		Publisher: publisher,
		Metrics:   m,
	})
	if err != nil {
		logger.Error("Failed to initialize analysis service", applog.FieldError, err.Error())
		os.Exit(1)
	}

	caches := cache.NewManager()
	caches.Register(svc.Cache())

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Analyzer:           svc,
		Logger:             logger,
		Metrics:            m,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ReadyChecks:        readyChecks,
	})
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
		caches.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err.Error())
			}
		}
	})
	caches.StartCleanup(ctx, time.Minute)

	logger.Info("Starting sikdae server", "port", cfg.Port, "daily_cap", cfg.DailyCap)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
