// Package cli provides the initialization steps shared by cmd/cuzdan,
// cmd/cuzdan-worker and cmd/adduser.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cuzdan/internal/auth"
	"cuzdan/internal/backend"
	"cuzdan/internal/config"
	"cuzdan/internal/log"
	"cuzdan/internal/notify"
	"cuzdan/internal/rates"
	"cuzdan/internal/sheets"
	gsheet "cuzdan/internal/sheets/google"
	"cuzdan/internal/store"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads the configuration from the environment.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	lc := log.DefaultConfig()
	lc.Component = component
	if out != nil {
		lc.Output = out
	}
	if cfg != nil {
		lc.Level = log.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// Fatal logs err and exits. Only main functions call it.
func Fatal(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}

// OpenStore creates the configured backend and applies the seed file.
// Seed users get their passwords hashed the same way registration does.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	hasher := auth.NewService(cfg.JWTSecret, cfg.TokenExpiry, nil)
	return backend.NewFactory(logger, hasher.HashPassword).CreateBackend(ctx, bc)
}

// NewRateProvider wires the live rate source to the repository. settings
// receives manual refreshes; it may be nil for processes that never do one.
func NewRateProvider(cfg *config.Config, repo store.ExchangeRateRepository, settings store.SettingsRepository, logger *log.Logger) *rates.Provider {
	return rates.NewProvider(rates.NewHTTPSource(cfg.RateSourceURL, 0), rates.Options{
		TTL:      cfg.RateCacheTTL,
		Fallback: cfg.FallbackRate,
		Rates:    repo,
		Settings: settings,
		Logger:   logger,
	})
}

// NewReportWriter returns the Google Sheets client, or nil when the export
// is not configured.
func NewReportWriter(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.ReportWriter, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
		return nil, nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("google sheets client: %w", err)
	}
	return client, nil
}

// NewMailer returns a Mailgun mailer when configured and a log mailer
// otherwise.
func NewMailer(cfg *config.Config, logger *log.Logger) notify.Mailer {
	if cfg.MailgunEnabled() {
		return notify.NewMailgunMailer(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.SenderEmail, "", logger)
	}
	logger.Info("Mailgun not configured, alert emails go to the log")
	return notify.NewLogMailer(logger)
}

// GracefulShutdown returns a context that is cancelled on SIGINT or SIGTERM.
// After cancellation cleanup runs with a context bounded by timeout, and
// the returned channel is closed once it has returned.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-ctx.Done()
		stop()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
