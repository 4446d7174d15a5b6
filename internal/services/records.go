// Package services holds the use cases behind the HTTP API and the worker:
// record CRUD, settings, the dashboard cycle and urgent-debt alerts.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"cuzdan/internal/auth"
	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/store"
)

// ErrUnauthenticated is returned for calls without a user id.
var ErrUnauthenticated = auth.ErrUnauthenticated

type record[T any] interface {
	RecordID() string
	WithID(id string) T
	Normalize() T
	Validate() error
}

// RecordService is the authenticated CRUD surface for one record kind.
type RecordService[T record[T]] struct {
	repo   store.RecordRepository[T]
	kind   core.Kind
	logger *log.Logger
}

func NewRecordService[T record[T]](kind core.Kind, repo store.RecordRepository[T], logger *log.Logger) *RecordService[T] {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecordService[T]{repo: repo, kind: kind, logger: logger.WithComponent(log.ComponentRecords)}
}

func (s *RecordService[T]) Kind() core.Kind { return s.kind }

func (s *RecordService[T]) List(ctx context.Context, userID string) ([]T, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	recs, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", s.kind, err)
	}
	return recs, nil
}

func (s *RecordService[T]) Get(ctx context.Context, userID, id string) (T, error) {
	var zero T
	if err := requireUser(userID); err != nil {
		return zero, err
	}
	rec, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", s.kind, err)
	}
	return rec, nil
}

// Create assigns a fresh id, normalizes and validates rec before storing it.
func (s *RecordService[T]) Create(ctx context.Context, userID string, rec T) (T, error) {
	var zero T
	if err := requireUser(userID); err != nil {
		return zero, err
	}
	rec = rec.WithID(uuid.NewString()).Normalize()
	if err := rec.Validate(); err != nil {
		return zero, err
	}
	created, err := s.repo.Create(ctx, userID, rec)
	if err != nil {
		s.logFailure(ctx, log.OpCreate, userID, rec.RecordID(), err)
		return zero, fmt.Errorf("create %s: %w", s.kind, err)
	}
	s.logger.InfoContext(ctx, "Record created",
		log.NewFields().WithOperation(log.OpCreate).WithUser(userID).WithRecord(string(s.kind), created.RecordID()).ToSlice()...)
	return created, nil
}

// Update replaces the record with id. The id in rec is ignored.
func (s *RecordService[T]) Update(ctx context.Context, userID, id string, rec T) (T, error) {
	var zero T
	if err := requireUser(userID); err != nil {
		return zero, err
	}
	rec = rec.WithID(id).Normalize()
	if err := rec.Validate(); err != nil {
		return zero, err
	}
	updated, err := s.repo.Update(ctx, userID, rec)
	if err != nil {
		s.logFailure(ctx, log.OpUpdate, userID, id, err)
		return zero, fmt.Errorf("update %s: %w", s.kind, err)
	}
	return updated, nil
}

func (s *RecordService[T]) Delete(ctx context.Context, userID, id string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		s.logFailure(ctx, log.OpDelete, userID, id, err)
		return fmt.Errorf("delete %s: %w", s.kind, err)
	}
	s.logger.InfoContext(ctx, "Record deleted",
		log.NewFields().WithOperation(log.OpDelete).WithUser(userID).WithRecord(string(s.kind), id).ToSlice()...)
	return nil
}

func (s *RecordService[T]) logFailure(ctx context.Context, op, userID, id string, err error) {
	s.logger.ErrorContext(ctx, "Record operation failed",
		log.NewFields().WithOperation(op).WithUser(userID).WithRecord(string(s.kind), id).WithError(err).ToSlice()...)
}

// RecordServices groups the four record kinds.
type RecordServices struct {
	Incomes  *RecordService[core.Income]
	Expenses *RecordService[core.Expense]
	Debts    *RecordService[core.Debt]
	Assets   *RecordService[core.Asset]
}

func NewRecordServices(repo store.Repository, logger *log.Logger) *RecordServices {
	return &RecordServices{
		Incomes:  NewRecordService(core.KindIncome, repo.Incomes(), logger),
		Expenses: NewRecordService(core.KindExpense, repo.Expenses(), logger),
		Debts:    NewRecordService(core.KindDebt, repo.Debts(), logger),
		Assets:   NewRecordService(core.KindAsset, repo.Assets(), logger),
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthenticated
	}
	return nil
}
