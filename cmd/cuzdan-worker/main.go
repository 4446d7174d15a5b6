package main

import (
	"context"
	"time"

	"cuzdan/internal/amqp"
	"cuzdan/internal/cli"
	"cuzdan/internal/log"
	"cuzdan/internal/services"
	"cuzdan/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, log.ComponentWorker, nil), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker, nil)
	logger.Info("Starting cuzdan-worker", log.FieldOperation, log.OpStartup,
		"rate_interval", cfg.RateRefreshInterval, "alert_interval", cfg.AlertInterval)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	db, err := cli.OpenStore(startCtx, cfg, logger)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize data backend", err)
	}
	repo := db.Repository

	settings := services.NewSettingsService(repo, nil, logger)
	provider := cli.NewRateProvider(cfg, repo, nil, logger)
	if err := provider.Prime(startCtx); err != nil {
		logger.Warn("Could not prime rate cache", log.FieldError, err)
	}

	// A nil *amqp.Client must not end up inside the interface.
	var publisher worker.Publisher
	var bus *amqp.Client
	if cfg.AMQPURL != "" {
		bus, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		publisher = bus
	} else {
		logger.Info("AMQP disabled - refreshed rates are only persisted")
	}

	dashboard := services.NewDashboardService(repo, settings, provider, logger)
	alerts := services.NewAlertService(repo, settings, dashboard, cli.NewMailer(cfg, logger), logger)
	rateJob := worker.NewRateJob(provider, publisher, "worker", logger)

	jobs := make(chan struct{}, 2)
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		<-jobs
		<-jobs
		if bus != nil {
			if err := bus.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
		if db.Cleanup != nil {
			if err := db.Cleanup(); err != nil {
				logger.Warn("Data backend close error", log.FieldError, err)
			}
		}
	})

	go func() {
		worker.RunEvery(ctx, "rate_refresh", cfg.RateRefreshInterval, rateJob.Run, logger)
		jobs <- struct{}{}
	}()
	go func() {
		worker.RunEvery(ctx, "debt_alerts", cfg.AlertInterval, func(ctx context.Context) error {
			rep, err := alerts.Run(ctx)
			if err != nil {
				return err
			}
			logger.InfoContext(ctx, "Debt alert run finished",
				"checked", rep.Checked, "notified", rep.Notified, "failed", rep.Failed)
			return nil
		}, logger)
		jobs <- struct{}{}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
