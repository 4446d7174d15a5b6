package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cuzdan/internal/core"
	"cuzdan/internal/store"

	_ "modernc.org/sqlite"
)

// SQLiteRepository implements store.Repository on a single SQLite file.
type SQLiteRepository struct {
	db       *sql.DB
	incomes  *recordTable[core.Income]
	expenses *recordTable[core.Expense]
	debts    *recordTable[core.Debt]
	assets   *recordTable[core.Asset]
}

var _ store.Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an open, already migrated database.
func NewWithDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:       db,
		incomes:  newIncomeTable(db),
		expenses: newExpenseTable(db),
		debts:    newDebtTable(db),
		assets:   newAssetTable(db),
	}
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Incomes() store.IncomeRepository   { return r.incomes }
func (r *SQLiteRepository) Expenses() store.ExpenseRepository { return r.expenses }
func (r *SQLiteRepository) Debts() store.DebtRepository       { return r.debts }
func (r *SQLiteRepository) Assets() store.AssetRepository     { return r.assets }

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const settingsColumns = "user_id, default_currency, include_long_term_debt, notifications_enabled, exchange_rate_value, exchange_rate_last_updated"

func (r *SQLiteRepository) GetSettings(ctx context.Context, userID string) (core.Settings, error) {
	var (
		s         core.Settings
		cur       string
		rate      sql.NullFloat64
		rateStamp sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT "+settingsColumns+" FROM user_settings WHERE user_id = ?", userID,
	).Scan(&s.UserID, &cur, &s.IncludeLongTermDebt, &s.NotificationsEnabled, &rate, &rateStamp)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Settings{}, fmt.Errorf("settings for %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	s.DisplayCurrency = core.NormalizeCurrency(core.Currency(cur))
	s.RateValue = rate.Float64
	if rateStamp.Valid && rateStamp.String != "" {
		if s.RateUpdatedAt, err = parseTime(rateStamp.String); err != nil {
			return core.Settings{}, fmt.Errorf("get settings: %w", err)
		}
	}
	return s, nil
}

// SaveSettings upserts the display preferences and leaves any stored rate alone.
func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO user_settings (user_id, default_currency, include_long_term_debt, notifications_enabled)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    default_currency = excluded.default_currency,
    include_long_term_debt = excluded.include_long_term_debt,
    notifications_enabled = excluded.notifications_enabled`,
		s.UserID, string(core.NormalizeCurrency(s.DisplayCurrency)), s.IncludeLongTermDebt, s.NotificationsEnabled)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveUserRate(ctx context.Context, userID string, rate core.ExchangeRate) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO user_settings (user_id, exchange_rate_value, exchange_rate_last_updated)
VALUES (?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    exchange_rate_value = excluded.exchange_rate_value,
    exchange_rate_last_updated = excluded.exchange_rate_last_updated`,
		userID, rate.Rate, formatTime(rate.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save user rate: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetRate(ctx context.Context, from, to core.Currency) (core.ExchangeRate, error) {
	rate := core.ExchangeRate{From: from, To: to}
	var stamp string
	err := r.db.QueryRowContext(ctx,
		"SELECT rate, updated_at FROM exchange_rates WHERE from_currency = ? AND to_currency = ?",
		string(from), string(to),
	).Scan(&rate.Rate, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExchangeRate{}, fmt.Errorf("rate %s/%s: %w", from, to, store.ErrNotFound)
	}
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("get rate: %w", err)
	}
	if rate.UpdatedAt, err = parseTime(stamp); err != nil {
		return core.ExchangeRate{}, fmt.Errorf("get rate: %w", err)
	}
	return rate, nil
}

func (r *SQLiteRepository) SaveRate(ctx context.Context, rate core.ExchangeRate) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO exchange_rates (from_currency, to_currency, rate, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(from_currency, to_currency) DO UPDATE SET
    rate = excluded.rate,
    updated_at = excluded.updated_at`,
		string(rate.From), string(rate.To), rate.Rate, formatTime(rate.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save rate: %w", err)
	}
	return nil
}

const userColumns = "id, email, password_hash, created_at"

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?)",
		u.ID, u.Email, u.PasswordHash, formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return core.User{}, fmt.Errorf("user %s: %w", u.Email, store.ErrConflict)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (r *SQLiteRepository) getUser(ctx context.Context, where string, arg string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user %s: %w", arg, store.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(s scanner) (core.User, error) {
	var (
		u       core.User
		created string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &created); err != nil {
		return u, err
	}
	t, err := parseTime(created)
	u.CreatedAt = t
	return u, err
}
