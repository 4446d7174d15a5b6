// Package rates resolves the USD to TRY exchange rate with a TTL cache,
// a fixed fallback and change notifications.
package rates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"cuzdan/internal/core"
	"cuzdan/internal/events"
	"cuzdan/internal/log"
	"cuzdan/internal/store"
)

const (
	DefaultTTL = time.Hour
	cacheKey   = "USD:TRY"
)

// Origin tells where a resolved rate came from.
type Origin string

const (
	OriginCache    Origin = "cache"
	OriginLive     Origin = "live"
	OriginFallback Origin = "fallback"
)

// Resolution is the outcome of a rate lookup. Warning is set, and wraps
// ErrRateFetchFailed, whenever Rate is the fallback value.
type Resolution struct {
	Rate      float64
	FetchedAt time.Time
	Origin    Origin
	Warning   error
}

// CurrentRate lets a Resolution be used directly as a converter rate source.
func (r Resolution) CurrentRate() float64 { return r.Rate }

func (r Resolution) ExchangeRate() core.ExchangeRate {
	return core.ExchangeRate{From: core.USD, To: core.TRY, Rate: r.Rate, UpdatedAt: r.FetchedAt}
}

type Options struct {
	TTL      time.Duration
	Fallback float64
	Rates    store.ExchangeRateRepository
	Settings store.SettingsRepository
	Logger   *log.Logger
	Now      func() time.Time
}

type Provider struct {
	source   Source
	cache    *gocache.Cache
	ttl      time.Duration
	fallback float64
	rates    store.ExchangeRateRepository
	settings store.SettingsRepository
	bus      *events.Broadcaster[core.ExchangeRate]
	group    singleflight.Group
	logger   *log.Logger
	now      func() time.Time

	mu     sync.Mutex
	latest time.Time
}

func NewProvider(source Source, opts Options) *Provider {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if !core.ValidRate(opts.Fallback) {
		opts.Fallback = core.DefaultRate
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Provider{
		source:   source,
		cache:    gocache.New(opts.TTL, 2*opts.TTL),
		ttl:      opts.TTL,
		fallback: opts.Fallback,
		rates:    opts.Rates,
		settings: opts.Settings,
		bus:      events.NewBroadcaster[core.ExchangeRate](),
		logger:   opts.Logger.WithComponent(log.ComponentRates),
		now:      opts.Now,
	}
}

// CurrentRate never fails. A fresh cached rate is returned as is; otherwise
// a live fetch is attempted and, if it fails, the fallback rate is returned
// with a warning. Concurrent misses share one fetch.
func (p *Provider) CurrentRate(ctx context.Context) Resolution {
	if res, ok := p.cached(); ok {
		return res
	}
	return p.fetch(ctx)
}

// Refresh forces a live fetch regardless of cache freshness. On success the
// rate is also stored on the user's settings. On fetch failure nothing is
// written and the fallback resolution is returned; the error result only
// reports a failure to persist the user's copy.
func (p *Provider) Refresh(ctx context.Context, userID string) (Resolution, error) {
	res := p.fetch(ctx)
	if res.Warning != nil || userID == "" || p.settings == nil {
		return res, nil
	}
	if err := p.settings.SaveUserRate(ctx, userID, res.ExchangeRate()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to store refreshed rate on settings",
			log.NewFields().WithUser(userID).WithOperation(log.OpRefresh).WithError(err).ToSlice()...)
		return res, fmt.Errorf("save user rate: %w", err)
	}
	return res, nil
}

// Accept ingests a rate produced elsewhere, typically another process.
// Rates not strictly newer than the newest one already seen are ignored,
// so a rate echoed back over the bus is not broadcast twice.
func (p *Provider) Accept(rate core.ExchangeRate) bool {
	if !core.ValidRate(rate.Rate) {
		return false
	}
	if rate.UpdatedAt.IsZero() {
		rate.UpdatedAt = p.now()
	}
	if !p.store(rate, true) {
		return false
	}
	p.bus.Publish(rate)
	return true
}

// Subscribe registers fn for every newly accepted rate.
func (p *Provider) Subscribe(fn func(core.ExchangeRate)) (unsubscribe func()) {
	return p.bus.Subscribe(fn)
}

// Prime seeds the cache from the persisted rate if it is still fresh.
func (p *Provider) Prime(ctx context.Context) error {
	if p.rates == nil {
		return nil
	}
	rate, err := p.rates.GetRate(ctx, core.USD, core.TRY)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load persisted rate: %w", err)
	}
	if !core.ValidRate(rate.Rate) || p.now().Sub(rate.UpdatedAt) >= p.ttl {
		return nil
	}
	p.store(rate, false)
	p.logger.InfoContext(ctx, "Primed rate cache",
		log.NewFields().WithRate(rate.Rate, "persisted").ToSlice()...)
	return nil
}

func (p *Provider) cached() (Resolution, bool) {
	v, ok := p.cache.Get(cacheKey)
	if !ok {
		return Resolution{}, false
	}
	rate := v.(core.ExchangeRate)
	if p.now().Sub(rate.UpdatedAt) >= p.ttl {
		return Resolution{}, false
	}
	return Resolution{Rate: rate.Rate, FetchedAt: rate.UpdatedAt, Origin: OriginCache}, true
}

// fetch runs one live fetch for all concurrent callers. The shared fetch
// outlives any single caller's cancellation; the source applies its own timeout.
func (p *Provider) fetch(ctx context.Context) Resolution {
	v, _, _ := p.group.Do(cacheKey, func() (any, error) {
		return p.fetchLive(context.WithoutCancel(ctx)), nil
	})
	return v.(Resolution)
}

func (p *Provider) fetchLive(ctx context.Context) Resolution {
	value, err := p.source.Fetch(ctx)
	if err == nil && !core.ValidRate(value) {
		err = fmt.Errorf("%w: unusable rate %v", ErrRateFetchFailed, value)
	}
	if err != nil {
		if !errors.Is(err, ErrRateFetchFailed) {
			err = fmt.Errorf("%w: %w", ErrRateFetchFailed, err)
		}
		p.logger.WarnContext(ctx, "Using fallback exchange rate",
			log.NewFields().WithOperation(log.OpFetchRate).WithRate(p.fallback, string(OriginFallback)).WithError(err).ToSlice()...)
		return Resolution{Rate: p.fallback, FetchedAt: p.now(), Origin: OriginFallback, Warning: err}
	}

	rate := core.ExchangeRate{From: core.USD, To: core.TRY, Rate: value, UpdatedAt: p.now()}
	if p.store(rate, false) {
		p.persist(ctx, rate)
		p.bus.Publish(rate)
	}
	p.logger.DebugContext(ctx, "Fetched live exchange rate",
		log.NewFields().WithOperation(log.OpFetchRate).WithRate(value, string(OriginLive)).ToSlice()...)
	return Resolution{Rate: rate.Rate, FetchedAt: rate.UpdatedAt, Origin: OriginLive}
}

// store writes rate into the cache unless a newer one is already there.
// With strict set, a rate carrying the same timestamp is also refused.
func (p *Provider) store(rate core.ExchangeRate, strict bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rate.UpdatedAt.Before(p.latest) || (strict && rate.UpdatedAt.Equal(p.latest) && !p.latest.IsZero()) {
		return false
	}
	p.latest = rate.UpdatedAt
	remaining := p.ttl - p.now().Sub(rate.UpdatedAt)
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	p.cache.Set(cacheKey, rate, remaining)
	return true
}

func (p *Provider) persist(ctx context.Context, rate core.ExchangeRate) {
	if p.rates == nil {
		return
	}
	if err := p.rates.SaveRate(ctx, rate); err != nil {
		p.logger.ErrorContext(ctx, "Failed to persist exchange rate",
			log.NewFields().WithOperation(log.OpFetchRate).WithError(err).ToSlice()...)
	}
}
