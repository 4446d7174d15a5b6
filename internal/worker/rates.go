package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/rates"
)

const relayBuffer = 16

// Publisher announces a rate to other processes.
type Publisher interface {
	PublishRateUpdated(ctx context.Context, rate core.ExchangeRate, source string) error
}

type Refresher interface {
	Refresh(ctx context.Context, userID string) (rates.Resolution, error)
}

// RateJob refreshes the shared USD to TRY rate and announces it.
type RateJob struct {
	rates     Refresher
	publisher Publisher
	source    string
	logger    *log.Logger
}

// NewRateJob returns a job that refreshes through provider. publisher may
// be nil when no message bus is configured.
func NewRateJob(provider Refresher, publisher Publisher, source string, logger *log.Logger) *RateJob {
	if logger == nil {
		logger = log.Discard()
	}
	return &RateJob{
		rates:     provider,
		publisher: publisher,
		source:    source,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// Run performs one refresh. A failed fetch is returned as an error and
// nothing is published; the previously stored rate stays in place.
func (j *RateJob) Run(ctx context.Context) error {
	res, err := j.rates.Refresh(ctx, "")
	if err != nil {
		return err
	}
	if res.Warning != nil {
		return fmt.Errorf("scheduled refresh: %w", res.Warning)
	}

	j.logger.InfoContext(ctx, "Refreshed exchange rate",
		log.NewFields().WithOperation(log.OpRefresh).WithRate(res.Rate, string(res.Origin)).ToSlice()...)

	if j.publisher == nil {
		return nil
	}
	if err := j.publisher.PublishRateUpdated(ctx, res.ExchangeRate(), j.source); err != nil {
		return fmt.Errorf("publish refreshed rate: %w", err)
	}
	return nil
}

// RateProvider is the part of the provider the relay needs.
type RateProvider interface {
	Accept(rate core.ExchangeRate) bool
	Subscribe(fn func(core.ExchangeRate)) (unsubscribe func())
}

// RateRelay connects a provider to the message bus in both directions.
// Rates fetched locally are published; rates received from the bus are fed
// to the provider and never published again.
type RateRelay struct {
	provider  RateProvider
	publisher Publisher
	source    string
	logger    *log.Logger

	mu         sync.Mutex
	lastRemote time.Time
	pending    chan core.ExchangeRate
}

func NewRateRelay(provider RateProvider, publisher Publisher, source string, logger *log.Logger) *RateRelay {
	if logger == nil {
		logger = log.Discard()
	}
	return &RateRelay{
		provider:  provider,
		publisher: publisher,
		source:    source,
		logger:    logger.WithComponent(log.ComponentWorker),
		pending:   make(chan core.ExchangeRate, relayBuffer),
	}
}

// HandleRemote is the consumer callback for rate messages.
func (r *RateRelay) HandleRemote(ctx context.Context, rate core.ExchangeRate) error {
	r.mu.Lock()
	if rate.UpdatedAt.After(r.lastRemote) {
		r.lastRemote = rate.UpdatedAt
	}
	r.mu.Unlock()

	if r.provider.Accept(rate) {
		r.logger.InfoContext(ctx, "Accepted rate from bus",
			log.NewFields().WithOperation(log.OpConsume).WithRate(rate.Rate, "amqp").ToSlice()...)
	}
	return nil
}

// Start forwards local rate changes to the publisher until ctx is done.
// Publishing happens off the caller's goroutine; when the publisher falls
// behind, the oldest waiting updates are dropped.
func (r *RateRelay) Start(ctx context.Context) (stop func()) {
	unsubscribe := r.provider.Subscribe(func(rate core.ExchangeRate) {
		if r.isRemote(rate) {
			return
		}
		select {
		case r.pending <- rate:
		default:
			select {
			case <-r.pending:
			default:
			}
			select {
			case r.pending <- rate:
			default:
			}
			r.logger.Warn("Rate publisher is behind, dropped an update")
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case rate := <-r.pending:
				if err := r.publisher.PublishRateUpdated(ctx, rate, r.source); err != nil && ctx.Err() == nil {
					r.logger.ErrorContext(ctx, "Failed to publish rate update",
						log.NewFields().WithOperation(log.OpPublish).WithRate(rate.Rate, r.source).WithError(err).ToSlice()...)
				}
			}
		}
	}()

	return func() {
		unsubscribe()
		cancel()
		<-done
	}
}

func (r *RateRelay) isRemote(rate core.ExchangeRate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.lastRemote.IsZero() && rate.UpdatedAt.Equal(r.lastRemote)
}
