package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cuzdan/internal/core"
	"cuzdan/internal/store"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// recordTable implements store.RecordRepository for one record table.
// Column lists exclude id and user_id, which every table has.
type recordTable[T any] struct {
	db     DBTX
	name   string
	cols   []string
	scan   func(scanner) (T, error)
	values func(T) []any
	id     func(T) string
	withID func(T, string) T

	selectSQL string
	getSQL    string
	insertSQL string
	updateSQL string
	deleteSQL string
}

func newRecordTable[T any](db DBTX, name string, cols []string, scan func(scanner) (T, error), values func(T) []any, id func(T) string, withID func(T, string) T) *recordTable[T] {
	t := &recordTable[T]{db: db, name: name, cols: cols, scan: scan, values: values, id: id, withID: withID}
	list := "id, " + strings.Join(cols, ", ")
	t.selectSQL = fmt.Sprintf("SELECT %s FROM %s WHERE user_id = ? ORDER BY rowid", list, name)
	t.getSQL = fmt.Sprintf("SELECT %s FROM %s WHERE user_id = ? AND id = ?", list, name)
	t.insertSQL = fmt.Sprintf("INSERT INTO %s (id, user_id, %s) VALUES (?, ?%s)", name, strings.Join(cols, ", "), strings.Repeat(", ?", len(cols)))
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	t.updateSQL = fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND user_id = ?", name, strings.Join(sets, ", "))
	t.deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE id = ? AND user_id = ?", name)
	return t
}

func (t *recordTable[T]) List(ctx context.Context, userID string) ([]T, error) {
	rows, err := t.db.QueryContext(ctx, t.selectSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.name, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return out, nil
}

func (t *recordTable[T]) Get(ctx context.Context, userID, id string) (T, error) {
	rec, err := t.scan(t.db.QueryRowContext(ctx, t.getSQL, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", t.name, id, store.ErrNotFound)
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("get %s: %w", t.name, err)
	}
	return rec, nil
}

func (t *recordTable[T]) Create(ctx context.Context, userID string, rec T) (T, error) {
	if t.id(rec) == "" {
		rec = t.withID(rec, uuid.NewString())
	}
	args := append([]any{t.id(rec), userID}, t.values(rec)...)
	if _, err := t.db.ExecContext(ctx, t.insertSQL, args...); err != nil {
		var zero T
		if isUniqueViolation(err) {
			return zero, fmt.Errorf("%s %s: %w", t.name, t.id(rec), store.ErrConflict)
		}
		return zero, fmt.Errorf("insert %s: %w", t.name, err)
	}
	return rec, nil
}

func (t *recordTable[T]) Update(ctx context.Context, userID string, rec T) (T, error) {
	args := append(t.values(rec), t.id(rec), userID)
	res, err := t.db.ExecContext(ctx, t.updateSQL, args...)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("update %s: %w", t.name, err)
	}
	if err := requireOne(res, t.name, t.id(rec)); err != nil {
		var zero T
		return zero, err
	}
	return rec, nil
}

func (t *recordTable[T]) Delete(ctx context.Context, userID, id string) error {
	res, err := t.db.ExecContext(ctx, t.deleteSQL, id, userID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return requireOne(res, t.name, id)
}

func requireOne(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, store.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const timeLayout = time.RFC3339Nano

// formatTime keeps the zone offset so calendar dates read back unchanged.
func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by hand may carry a bare date
		if d, derr := time.Parse("2006-01-02", s); derr == nil {
			return d, nil
		}
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// currencyOf maps a legacy NULL or empty currency to USD.
func currencyOf(ns sql.NullString) core.Currency {
	return core.NormalizeCurrency(core.Currency(ns.String))
}

func newIncomeTable(db DBTX) *recordTable[core.Income] {
	return newRecordTable(db, "incomes",
		[]string{"title", "amount", "currency", "category", "date", "status"},
		func(s scanner) (core.Income, error) {
			var (
				in   core.Income
				cur  sql.NullString
				date string
			)
			if err := s.Scan(&in.ID, &in.Title, &in.Amount, &cur, &in.Category, &date, &in.Status); err != nil {
				return in, err
			}
			in.Currency = currencyOf(cur)
			d, err := parseTime(date)
			in.Date = d
			return in, err
		},
		func(in core.Income) []any {
			return []any{in.Title, in.Amount, string(in.Currency), string(in.Category), formatTime(in.Date), string(in.Status)}
		},
		core.Income.RecordID, core.Income.WithID,
	)
}

func newExpenseTable(db DBTX) *recordTable[core.Expense] {
	return newRecordTable(db, "expenses",
		[]string{"title", "amount", "currency", "date", "type", "category"},
		func(s scanner) (core.Expense, error) {
			var (
				ex   core.Expense
				cur  sql.NullString
				date string
			)
			if err := s.Scan(&ex.ID, &ex.Title, &ex.Amount, &cur, &date, &ex.Type, &ex.Category); err != nil {
				return ex, err
			}
			ex.Currency = currencyOf(cur)
			d, err := parseTime(date)
			ex.Date = d
			return ex, err
		},
		func(ex core.Expense) []any {
			return []any{ex.Title, ex.Amount, string(ex.Currency), formatTime(ex.Date), string(ex.Type), ex.Category}
		},
		core.Expense.RecordID, core.Expense.WithID,
	)
}

func newDebtTable(db DBTX) *recordTable[core.Debt] {
	return newRecordTable(db, "debts",
		[]string{"title", "amount", "currency", "creditor", "deadline", "is_long_term", "status"},
		func(s scanner) (core.Debt, error) {
			var (
				d        core.Debt
				cur      sql.NullString
				deadline string
			)
			if err := s.Scan(&d.ID, &d.Title, &d.Amount, &cur, &d.Creditor, &deadline, &d.IsLongTerm, &d.Status); err != nil {
				return d, err
			}
			d.Currency = currencyOf(cur)
			t, err := parseTime(deadline)
			d.Deadline = t
			return d, err
		},
		func(d core.Debt) []any {
			return []any{d.Title, d.Amount, string(d.Currency), d.Creditor, formatTime(d.Deadline), d.IsLongTerm, string(d.Status)}
		},
		core.Debt.RecordID, core.Debt.WithID,
	)
}

func newAssetTable(db DBTX) *recordTable[core.Asset] {
	return newRecordTable(db, "assets",
		[]string{"title", "type", "amount", "unit", "current_price"},
		func(s scanner) (core.Asset, error) {
			var a core.Asset
			err := s.Scan(&a.ID, &a.Title, &a.Type, &a.Amount, &a.Unit, &a.CurrentPrice)
			return a, err
		},
		func(a core.Asset) []any {
			return []any{a.Title, a.Type, a.Amount, a.Unit, a.CurrentPrice}
		},
		core.Asset.RecordID, core.Asset.WithID,
	)
}
