package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cuzdan/internal/cache"
	"cuzdan/internal/core"
	"cuzdan/internal/events"
	"cuzdan/internal/log"
	"cuzdan/internal/store"
)

const (
	DefaultSettingsCacheSize = 1000
	DefaultSettingsCacheTTL  = 10 * time.Minute
)

// SettingsUpdate carries the fields a user may change. Nil fields are kept.
type SettingsUpdate struct {
	DisplayCurrency      *core.Currency `json:"default_currency,omitempty"`
	IncludeLongTermDebt  *bool          `json:"include_long_term_debt,omitempty"`
	NotificationsEnabled *bool          `json:"notifications_enabled,omitempty"`
}

// SettingsService owns the display preferences of every user. Reads are
// served from an LRU mirror of the durable store and every change is
// broadcast to subscribers. It also satisfies store.SettingsRepository so
// the rate provider can write refreshed rates through it.
type SettingsService struct {
	repo   store.SettingsRepository
	cache  *cache.LRUCache[core.Settings]
	bus    *events.Broadcaster[core.Settings]
	logger *log.Logger
}

var _ store.SettingsRepository = (*SettingsService)(nil)

func NewSettingsService(repo store.SettingsRepository, mirror *cache.LRUCache[core.Settings], logger *log.Logger) *SettingsService {
	if mirror == nil {
		mirror = cache.NewLRUCache[core.Settings](DefaultSettingsCacheSize, DefaultSettingsCacheTTL)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SettingsService{
		repo:   repo,
		cache:  mirror,
		bus:    events.NewBroadcaster[core.Settings](),
		logger: logger.WithComponent(log.ComponentSettings),
	}
}

// Cache exposes the mirror so it can be registered for periodic cleanup.
func (s *SettingsService) Cache() *cache.LRUCache[core.Settings] { return s.cache }

// Get returns the user's settings, or the defaults if none were saved.
func (s *SettingsService) Get(ctx context.Context, userID string) (core.Settings, error) {
	if err := requireUser(userID); err != nil {
		return core.Settings{}, err
	}
	if st, ok := s.cache.Get(userID); ok {
		return st, nil
	}
	st, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		st, err = core.DefaultSettings(userID), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	st.UserID = userID
	st.DisplayCurrency = core.NormalizeCurrency(st.DisplayCurrency)
	s.cache.Set(userID, st)
	return st, nil
}

// Update applies u on top of the current settings and persists the result.
func (s *SettingsService) Update(ctx context.Context, userID string, u SettingsUpdate) (core.Settings, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return core.Settings{}, err
	}
	if u.DisplayCurrency != nil {
		c, err := core.ParseCurrency(string(*u.DisplayCurrency))
		if err != nil {
			return core.Settings{}, err
		}
		st.DisplayCurrency = c
	}
	if u.IncludeLongTermDebt != nil {
		st.IncludeLongTermDebt = *u.IncludeLongTermDebt
	}
	if u.NotificationsEnabled != nil {
		st.NotificationsEnabled = *u.NotificationsEnabled
	}
	if err := s.SaveSettings(ctx, st); err != nil {
		return core.Settings{}, err
	}
	return st, nil
}

// Subscribe registers fn for every settings change.
func (s *SettingsService) Subscribe(fn func(core.Settings)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

func (s *SettingsService) GetSettings(ctx context.Context, userID string) (core.Settings, error) {
	return s.Get(ctx, userID)
}

func (s *SettingsService) SaveSettings(ctx context.Context, st core.Settings) error {
	if err := requireUser(st.UserID); err != nil {
		return err
	}
	if !st.DisplayCurrency.Valid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidCurrency, st.DisplayCurrency)
	}
	if err := s.repo.SaveSettings(ctx, st); err != nil {
		s.cache.Delete(st.UserID)
		s.logger.ErrorContext(ctx, "Failed to save settings",
			log.NewFields().WithOperation(log.OpUpdate).WithUser(st.UserID).WithError(err).ToSlice()...)
		return fmt.Errorf("save settings: %w", err)
	}
	s.cache.Set(st.UserID, st)
	s.bus.Publish(st)
	return nil
}

// SaveUserRate stores a refreshed rate on the user's settings.
func (s *SettingsService) SaveUserRate(ctx context.Context, userID string, rate core.ExchangeRate) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.repo.SaveUserRate(ctx, userID, rate); err != nil {
		return fmt.Errorf("save user rate: %w", err)
	}
	s.cache.Delete(userID)
	st, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	s.bus.Publish(st)
	return nil
}
