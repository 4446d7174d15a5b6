// Package memory is an in-process store.Repository used for demos and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

type Store struct {
	incomes  *table[core.Income]
	expenses *table[core.Expense]
	debts    *table[core.Debt]
	assets   *table[core.Asset]

	mu       sync.RWMutex
	settings map[string]core.Settings
	rates    map[string]core.ExchangeRate
	users    map[string]core.User
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		incomes:  newTable(core.Income.RecordID, core.Income.WithID, core.Income.Normalize),
		expenses: newTable(core.Expense.RecordID, core.Expense.WithID, core.Expense.Normalize),
		debts:    newTable(core.Debt.RecordID, core.Debt.WithID, core.Debt.Normalize),
		assets:   newTable(core.Asset.RecordID, core.Asset.WithID, core.Asset.Normalize),
		settings: map[string]core.Settings{},
		rates:    map[string]core.ExchangeRate{},
		users:    map[string]core.User{},
	}
}

func (s *Store) Incomes() store.IncomeRepository   { return s.incomes }
func (s *Store) Expenses() store.ExpenseRepository { return s.expenses }
func (s *Store) Debts() store.DebtRepository       { return s.debts }
func (s *Store) Assets() store.AssetRepository     { return s.assets }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) GetSettings(_ context.Context, userID string) (core.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settings[userID]
	if !ok {
		return core.Settings{}, fmt.Errorf("settings for %s: %w", userID, store.ErrNotFound)
	}
	return st, nil
}

func (s *Store) SaveSettings(_ context.Context, st core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// the stored rate is only written by SaveUserRate
	prev := s.settings[st.UserID]
	st.RateValue, st.RateUpdatedAt = prev.RateValue, prev.RateUpdatedAt
	st.DisplayCurrency = core.NormalizeCurrency(st.DisplayCurrency)
	s.settings[st.UserID] = st
	return nil
}

func (s *Store) SaveUserRate(_ context.Context, userID string, rate core.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok {
		st = core.DefaultSettings(userID)
	}
	st.RateValue, st.RateUpdatedAt = rate.Rate, rate.UpdatedAt
	s.settings[userID] = st
	return nil
}

func pairKey(from, to core.Currency) string { return string(from) + ":" + string(to) }

func (s *Store) GetRate(_ context.Context, from, to core.Currency) (core.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[pairKey(from, to)]
	if !ok {
		return core.ExchangeRate{}, fmt.Errorf("rate %s/%s: %w", from, to, store.ErrNotFound)
	}
	return r, nil
}

func (s *Store) SaveRate(_ context.Context, rate core.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[pairKey(rate.From, rate.To)] = rate
	return nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return core.User{}, fmt.Errorf("user %s: %w", u.Email, store.ErrConflict)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
}

func (s *Store) ListUsers(context.Context) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// table keeps one kind of record per user in insertion order.
type table[T any] struct {
	mu        sync.RWMutex
	rows      map[string][]T
	id        func(T) string
	withID    func(T, string) T
	normalize func(T) T
}

func newTable[T any](id func(T) string, withID func(T, string) T, normalize func(T) T) *table[T] {
	return &table[T]{rows: map[string][]T{}, id: id, withID: withID, normalize: normalize}
}

func (t *table[T]) List(_ context.Context, userID string) ([]T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]T{}, t.rows[userID]...), nil
}

func (t *table[T]) Get(_ context.Context, userID, id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.index(userID, id); i >= 0 {
		return t.rows[userID][i], nil
	}
	var zero T
	return zero, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
}

func (t *table[T]) Create(_ context.Context, userID string, rec T) (T, error) {
	rec = t.normalize(rec)
	if t.id(rec) == "" {
		rec = t.withID(rec, uuid.NewString())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index(userID, t.id(rec)) >= 0 {
		var zero T
		return zero, fmt.Errorf("record %s: %w", t.id(rec), store.ErrConflict)
	}
	t.rows[userID] = append(t.rows[userID], rec)
	return rec, nil
}

func (t *table[T]) Update(_ context.Context, userID string, rec T) (T, error) {
	rec = t.normalize(rec)
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.index(userID, t.id(rec))
	if i < 0 {
		var zero T
		return zero, fmt.Errorf("record %s: %w", t.id(rec), store.ErrNotFound)
	}
	t.rows[userID][i] = rec
	return rec, nil
}

func (t *table[T]) Delete(_ context.Context, userID, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.index(userID, id)
	if i < 0 {
		return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	rows := t.rows[userID]
	t.rows[userID] = append(rows[:i:i], rows[i+1:]...)
	return nil
}

// index must be called with t.mu held.
func (t *table[T]) index(userID, id string) int {
	for i, r := range t.rows[userID] {
		if t.id(r) == id {
			return i
		}
	}
	return -1
}
