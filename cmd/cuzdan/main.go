package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cuzdan/internal/amqp"
	"cuzdan/internal/auth"
	"cuzdan/internal/cache"
	"cuzdan/internal/cli"
	apphttp "cuzdan/internal/http"
	"cuzdan/internal/log"
	"cuzdan/internal/middleware/ratelimit"
	"cuzdan/internal/services"
	"cuzdan/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentApp, nil), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp, nil)
	logger.Info("Starting cuzdan", log.FieldOperation, log.OpStartup, "port", cfg.Port, "backend", cfg.DataBackend)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	db, err := cli.OpenStore(startCtx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize data backend", err)
	}
	repo := db.Repository

	settings := services.NewSettingsService(repo, nil, logger)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(settings.Cache())
	cacheManager.StartCleanup(5 * time.Minute)

	provider := cli.NewRateProvider(cfg, repo, settings, logger)
	if err := provider.Prime(startCtx); err != nil {
		logger.Warn("Could not prime rate cache", log.FieldError, err)
	}

	reports, err := cli.NewReportWriter(startCtx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}
	var dashOpts []services.DashboardOption
	if reports != nil {
		dashOpts = append(dashOpts, services.WithReportWriter(reports))
	}
	dashboard := services.NewDashboardService(repo, settings, provider, logger, dashOpts...)

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerMinute = cfg.RateLimitPerMinute

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:      auth.NewService(cfg.JWTSecret, cfg.TokenExpiry, repo),
		Records:   services.NewRecordServices(repo, logger),
		Dashboard: dashboard,
		Settings:  settings,
		Rates:     provider,
		Ready:     repo.Ping,
		RateLimit: limits,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		bus       *amqp.Client
		stopRelay func()
	)
	if cfg.AMQPURL != "" {
		bus, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		relay := worker.NewRateRelay(provider, bus, "api", logger)
		stopRelay = relay.Start(ctx)
		go func() {
			if err := bus.ConsumeRateUpdates(ctx, relay.HandleRemote); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Rate update consumer stopped", log.FieldError, err)
			}
		}()
		logger.Info("Sharing rate updates over AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - rate updates stay in this process")
	}

	sigCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
		if stopRelay != nil {
			stopRelay()
		}
		if bus != nil {
			if err := bus.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		cacheManager.Stop()
		if db.Cleanup != nil {
			if err := db.Cleanup(); err != nil {
				logger.Warn("Data backend close error", log.FieldError, err)
			}
		}
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cli.Fatal(logger, "Server error", err)
	}

	cli.WaitForShutdown(sigCtx, done)
	logger.Info("Server stopped gracefully")
}
