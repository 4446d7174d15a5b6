package rates

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type scriptedSource struct {
	calls atomic.Int32
	mu    sync.Mutex
	rate  float64
	err   error
}

func (s *scriptedSource) Fetch(context.Context) (float64, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate, s.err
}

func (s *scriptedSource) set(rate float64, err error) {
	s.mu.Lock()
	s.rate, s.err = rate, err
	s.mu.Unlock()
}

type rateStore struct {
	mu        sync.Mutex
	shared    *core.ExchangeRate
	userRates map[string]core.ExchangeRate
	saveErr   error
}

func (r *rateStore) GetRate(_ context.Context, from, to core.Currency) (core.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shared == nil {
		return core.ExchangeRate{}, store.ErrNotFound
	}
	return *r.shared, nil
}

func (r *rateStore) SaveRate(_ context.Context, rate core.ExchangeRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shared = &rate
	return nil
}

func (r *rateStore) GetSettings(context.Context, string) (core.Settings, error) {
	return core.Settings{}, store.ErrNotFound
}

func (r *rateStore) SaveSettings(context.Context, core.Settings) error { return nil }

func (r *rateStore) SaveUserRate(_ context.Context, userID string, rate core.ExchangeRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.userRates == nil {
		r.userRates = map[string]core.ExchangeRate{}
	}
	r.userRates[userID] = rate
	return nil
}

type ProviderSuite struct {
	suite.Suite
	clock  *fakeClock
	source *scriptedSource
	db     *rateStore
	p      *Provider
}

func (s *ProviderSuite) SetupTest() {
	s.clock = &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s.source = &scriptedSource{rate: 40}
	s.db = &rateStore{}
	s.p = NewProvider(s.source, Options{
		Rates:    s.db,
		Settings: s.db,
		Now:      s.clock.Now,
	})
}

func (s *ProviderSuite) TestCachesForOneHour() {
	ctx := context.Background()

	first := s.p.CurrentRate(ctx)
	s.Equal(40.0, first.Rate)
	s.Equal(OriginLive, first.Origin)
	s.NoError(first.Warning)

	s.source.set(42, nil)
	s.clock.Advance(59 * time.Minute)
	second := s.p.CurrentRate(ctx)
	s.Equal(40.0, second.Rate)
	s.Equal(OriginCache, second.Origin)
	s.EqualValues(1, s.source.calls.Load())

	s.clock.Advance(time.Minute)
	third := s.p.CurrentRate(ctx)
	s.Equal(42.0, third.Rate)
	s.Equal(OriginLive, third.Origin)
	s.EqualValues(2, s.source.calls.Load())
}

func (s *ProviderSuite) TestFallbackOnFailure() {
	s.source.set(0, errors.New("connection refused"))

	res := s.p.CurrentRate(context.Background())
	s.Equal(core.DefaultRate, res.Rate)
	s.Equal(OriginFallback, res.Origin)
	s.ErrorIs(res.Warning, ErrRateFetchFailed)
	s.Nil(s.db.shared, "fallback must not be persisted")

	// fallback is not cached, the next call retries
	s.source.set(39, nil)
	res = s.p.CurrentRate(context.Background())
	s.Equal(39.0, res.Rate)
	s.NoError(res.Warning)
}

func (s *ProviderSuite) TestSuccessPersistsAndNotifies() {
	var got []core.ExchangeRate
	unsub := s.p.Subscribe(func(r core.ExchangeRate) { got = append(got, r) })

	s.p.CurrentRate(context.Background())
	s.Require().Len(got, 1)
	s.Equal(40.0, got[0].Rate)
	s.Equal(core.USD, got[0].From)
	s.Equal(core.TRY, got[0].To)
	s.Require().NotNil(s.db.shared)
	s.Equal(40.0, s.db.shared.Rate)

	// cache hits do not notify
	s.p.CurrentRate(context.Background())
	s.Len(got, 1)

	unsub()
	_, err := s.p.Refresh(context.Background(), "")
	s.NoError(err)
	s.Len(got, 1)
}

func (s *ProviderSuite) TestRefreshBypassesCacheAndStoresPerUser() {
	ctx := context.Background()
	s.p.CurrentRate(ctx)
	s.source.set(43.5, nil)

	res, err := s.p.Refresh(ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(43.5, res.Rate)
	s.Equal(OriginLive, res.Origin)
	s.Equal(43.5, s.db.userRates["user-1"].Rate)
	s.Equal(43.5, s.p.CurrentRate(ctx).Rate)
}

func (s *ProviderSuite) TestRefreshFailureWritesNothing() {
	s.source.set(0, ErrRateFetchFailed)

	res, err := s.p.Refresh(context.Background(), "user-1")
	s.NoError(err)
	s.ErrorIs(res.Warning, ErrRateFetchFailed)
	s.Equal(core.DefaultRate, res.Rate)
	s.Empty(s.db.userRates)
}

func (s *ProviderSuite) TestRefreshReportsSettingsFailure() {
	s.db.saveErr = errors.New("disk full")
	res, err := s.p.Refresh(context.Background(), "user-1")
	s.Error(err)
	s.Equal(40.0, res.Rate)
}

func (s *ProviderSuite) TestAcceptLastWriteWins() {
	now := s.clock.Now()
	s.True(s.p.Accept(core.ExchangeRate{Rate: 41, UpdatedAt: now}))
	s.False(s.p.Accept(core.ExchangeRate{Rate: 30, UpdatedAt: now.Add(-time.Minute)}))
	s.False(s.p.Accept(core.ExchangeRate{Rate: 41, UpdatedAt: now}), "an echoed rate is not accepted twice")
	s.False(s.p.Accept(core.ExchangeRate{Rate: -1, UpdatedAt: now.Add(time.Minute)}))

	res := s.p.CurrentRate(context.Background())
	s.Equal(41.0, res.Rate)
	s.Equal(OriginCache, res.Origin)
	s.Zero(s.source.calls.Load())
}

func (s *ProviderSuite) TestPrimeUsesFreshPersistedRate() {
	s.db.shared = &core.ExchangeRate{From: core.USD, To: core.TRY, Rate: 37, UpdatedAt: s.clock.Now().Add(-10 * time.Minute)}
	s.Require().NoError(s.p.Prime(context.Background()))

	res := s.p.CurrentRate(context.Background())
	s.Equal(37.0, res.Rate)
	s.Equal(OriginCache, res.Origin)
}

func (s *ProviderSuite) TestPrimeIgnoresStaleRate() {
	s.db.shared = &core.ExchangeRate{Rate: 37, UpdatedAt: s.clock.Now().Add(-2 * time.Hour)}
	s.Require().NoError(s.p.Prime(context.Background()))

	res := s.p.CurrentRate(context.Background())
	s.Equal(40.0, res.Rate)
	s.Equal(OriginLive, res.Origin)
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderSuite))
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	src := SourceFunc(func(context.Context) (float64, error) {
		calls.Add(1)
		<-release
		return 44, nil
	})
	p := NewProvider(src, Options{})

	var wg sync.WaitGroup
	results := make([]Resolution, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.CurrentRate(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
	for _, r := range results {
		require.Equal(t, 44.0, r.Rate)
	}
}

func TestSharedFetchSurvivesCancelledCaller(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	src := SourceFunc(func(ctx context.Context) (float64, error) {
		calls.Add(1)
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-release:
			return 44, nil
		}
	})
	p := NewProvider(src, Options{})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan Resolution, 1)
	go func() { first <- p.CurrentRate(firstCtx) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan Resolution, 1)
	go func() { second <- p.CurrentRate(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for _, ch := range []chan Resolution{first, second} {
		res := <-ch
		assert.Equal(t, 44.0, res.Rate)
		assert.Equal(t, OriginLive, res.Origin)
		assert.NoError(t, res.Warning)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestProviderWithoutStores(t *testing.T) {
	p := NewProvider(SourceFunc(func(context.Context) (float64, error) { return 39.5, nil }), Options{Fallback: -4})
	require.NoError(t, p.Prime(context.Background()))

	res, err := p.Refresh(context.Background(), "someone")
	require.NoError(t, err)
	assert.Equal(t, 39.5, res.Rate)
	assert.Equal(t, 39.5, res.CurrentRate())
}
