// Package store declares the persistence ports for finance records,
// settings, users and the shared exchange rate.
package store

import (
	"context"
	"errors"

	"cuzdan/internal/core"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// RecordRepository is the CRUD surface shared by the four record kinds.
// Every call is scoped to one user; records of other users are invisible.
type RecordRepository[T any] interface {
	List(ctx context.Context, userID string) ([]T, error)
	Get(ctx context.Context, userID, id string) (T, error)
	Create(ctx context.Context, userID string, rec T) (T, error)
	Update(ctx context.Context, userID string, rec T) (T, error)
	Delete(ctx context.Context, userID, id string) error
}

type (
	IncomeRepository  = RecordRepository[core.Income]
	ExpenseRepository = RecordRepository[core.Expense]
	DebtRepository    = RecordRepository[core.Debt]
	AssetRepository   = RecordRepository[core.Asset]
)

type SettingsRepository interface {
	// GetSettings returns ErrNotFound when the user never saved settings.
	GetSettings(ctx context.Context, userID string) (core.Settings, error)
	SaveSettings(ctx context.Context, s core.Settings) error
	// SaveUserRate stores a refreshed rate on the user's settings row,
	// creating the row with defaults when absent.
	SaveUserRate(ctx context.Context, userID string, rate core.ExchangeRate) error
}

type ExchangeRateRepository interface {
	GetRate(ctx context.Context, from, to core.Currency) (core.ExchangeRate, error)
	SaveRate(ctx context.Context, rate core.ExchangeRate) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, u core.User) (core.User, error)
	GetUser(ctx context.Context, id string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
	ListUsers(ctx context.Context) ([]core.User, error)
}

// Repository is everything a backend provides.
type Repository interface {
	Incomes() IncomeRepository
	Expenses() ExpenseRepository
	Debts() DebtRepository
	Assets() AssetRepository
	SettingsRepository
	ExchangeRateRepository
	UserRepository
	Ping(ctx context.Context) error
	Close() error
}
