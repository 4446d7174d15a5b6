package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cuzdan/internal/core"
	"cuzdan/internal/notify"
	"cuzdan/internal/rates"
	"cuzdan/internal/store"
	"cuzdan/internal/store/memory"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type staticRates struct {
	res   rates.Resolution
	calls atomic.Int32
}

func (s *staticRates) CurrentRate(context.Context) rates.Resolution {
	s.calls.Add(1)
	return s.res
}

func liveRate(r float64) *staticRates {
	return &staticRates{res: rates.Resolution{Rate: r, FetchedAt: testNow, Origin: rates.OriginLive}}
}

// brokenDebts fails every List call.
type brokenDebts struct{ store.DebtRepository }

func (brokenDebts) List(context.Context, string) ([]core.Debt, error) {
	return nil, errors.New("disk on fire")
}

type brokenStore struct{ *memory.Store }

func (b brokenStore) Debts() store.DebtRepository { return brokenDebts{b.Store.Debts()} }

// brokenSettings fails every settings read.
type brokenSettings struct{ store.SettingsRepository }

func (brokenSettings) GetSettings(context.Context, string) (core.Settings, error) {
	return core.Settings{}, errors.New("settings table locked")
}

// countingSettings counts reads that reach the durable store.
type countingSettings struct {
	store.SettingsRepository
	reads atomic.Int32
}

func (c *countingSettings) GetSettings(ctx context.Context, userID string) (core.Settings, error) {
	c.reads.Add(1)
	return c.SettingsRepository.GetSettings(ctx, userID)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, e notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

func day(offsetDays int) time.Time {
	return testNow.AddDate(0, 0, offsetDays)
}
