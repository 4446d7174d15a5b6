// Package worker runs the background jobs: the scheduled exchange rate
// refresh, the relay between the rate provider and the message bus, and the
// urgent-debt alert sweep.
package worker

import (
	"context"
	"time"

	"cuzdan/internal/log"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// RunEvery runs job once immediately and then on every tick until ctx is
// done. Failures are logged and do not stop the loop.
func RunEvery(ctx context.Context, name string, interval time.Duration, job Job, logger *log.Logger) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentWorker)

	run := func() {
		start := time.Now()
		if err := job(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorContext(ctx, "Job failed", "job", name, log.FieldError, err)
			return
		}
		logger.DebugContext(ctx, "Job complete", "job", name, log.FieldDuration, time.Since(start).Milliseconds())
	}

	logger.InfoContext(ctx, "Starting job", "job", name, "interval", interval)
	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Stopping job", "job", name)
			return
		case <-ticker.C:
			run()
		}
	}
}
