package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cuzdan/internal/core"
	"cuzdan/internal/currency"
	"cuzdan/internal/log"
	"cuzdan/internal/rates"
	"cuzdan/internal/report"
	"cuzdan/internal/sheets"
	"cuzdan/internal/store"
	"cuzdan/internal/summary"
)

// ErrRecordFetchFailed means at least one collection could not be loaded;
// no summary is computed from partial data.
var ErrRecordFetchFailed = errors.New("record fetch failed")

type RecordSource interface {
	Incomes() store.IncomeRepository
	Expenses() store.ExpenseRepository
	Debts() store.DebtRepository
	Assets() store.AssetRepository
}

type RateProvider interface {
	CurrentRate(ctx context.Context) rates.Resolution
}

// DashboardRequest selects whose dashboard to build. Nil overrides fall
// back to the user's saved settings.
type DashboardRequest struct {
	UserID              string
	Currency            *core.Currency
	IncludeLongTermDebt *bool
}

// Dashboard is the result of one computation cycle. Every figure in it was
// derived from Rate.
type Dashboard struct {
	Records  core.Records
	Settings core.Settings
	Rate     rates.Resolution
	Summary  core.Summary
}

type DashboardService struct {
	records  RecordSource
	settings *SettingsService
	rates    RateProvider
	sheets   sheets.ReportWriter
	now      func() time.Time
	logger   *log.Logger
}

type DashboardOption func(*DashboardService)

func WithReportWriter(w sheets.ReportWriter) DashboardOption {
	return func(s *DashboardService) { s.sheets = w }
}

func WithDashboardClock(now func() time.Time) DashboardOption {
	return func(s *DashboardService) { s.now = now }
}

func NewDashboardService(records RecordSource, settings *SettingsService, provider RateProvider, logger *log.Logger, opts ...DashboardOption) *DashboardService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &DashboardService{
		records:  records,
		settings: settings,
		rates:    provider,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentDashboard),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Build loads the user's records and settings and resolves the rate
// concurrently, then summarizes with a converter pinned to that one rate.
func (s *DashboardService) Build(ctx context.Context, req DashboardRequest) (Dashboard, error) {
	if err := requireUser(req.UserID); err != nil {
		return Dashboard{}, err
	}

	var (
		d  Dashboard
		st core.Settings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Records.Incomes, err = s.records.Incomes().List(gctx, req.UserID)
		return fetchErr(core.KindIncome, err)
	})
	g.Go(func() (err error) {
		d.Records.Expenses, err = s.records.Expenses().List(gctx, req.UserID)
		return fetchErr(core.KindExpense, err)
	})
	g.Go(func() (err error) {
		d.Records.Debts, err = s.records.Debts().List(gctx, req.UserID)
		return fetchErr(core.KindDebt, err)
	})
	g.Go(func() (err error) {
		d.Records.Assets, err = s.records.Assets().List(gctx, req.UserID)
		return fetchErr(core.KindAsset, err)
	})
	g.Go(func() (err error) {
		if st, err = s.settings.Get(gctx, req.UserID); err != nil {
			return fmt.Errorf("%w: settings: %w", ErrRecordFetchFailed, err)
		}
		return nil
	})
	g.Go(func() error {
		d.Rate = s.rates.CurrentRate(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to load dashboard data",
			log.NewFields().WithOperation(log.OpSummarize).WithUser(req.UserID).WithError(err).ToSlice()...)
		return Dashboard{}, err
	}

	opts := summary.Options{
		DisplayCurrency:     st.DisplayCurrency,
		IncludeLongTermDebt: st.IncludeLongTermDebt,
		Now:                 s.now(),
	}
	if req.Currency != nil {
		c, err := core.ParseCurrency(string(*req.Currency))
		if err != nil {
			return Dashboard{}, err
		}
		opts.DisplayCurrency = c
	}
	if req.IncludeLongTermDebt != nil {
		opts.IncludeLongTermDebt = *req.IncludeLongTermDebt
	}

	conv := currency.NewConverter(d.Rate)
	sum, err := summary.Summarize(d.Records, conv, opts)
	if err != nil {
		return Dashboard{}, fmt.Errorf("summarize: %w", err)
	}
	d.Settings = st
	d.Summary = sum
	return d, nil
}

// ExportCSV builds the dashboard and renders it as a CSV report.
func (s *DashboardService) ExportCSV(ctx context.Context, req DashboardRequest) ([]byte, string, Dashboard, error) {
	d, err := s.Build(ctx, req)
	if err != nil {
		return nil, "", Dashboard{}, err
	}
	data, err := report.ExportCSV(d.Records, d.Summary)
	if err != nil {
		return nil, "", Dashboard{}, fmt.Errorf("export csv: %w", err)
	}
	s.logger.InfoContext(ctx, "Exported CSV report",
		log.NewFields().WithOperation(log.OpExport).WithUser(req.UserID).WithRate(d.Rate.Rate, string(d.Rate.Origin)).ToSlice()...)
	return data, report.Filename(s.now()), d, nil
}

// ExportSheets writes the report rows to the configured spreadsheet.
func (s *DashboardService) ExportSheets(ctx context.Context, req DashboardRequest, sheetTitle string) (string, Dashboard, error) {
	if s.sheets == nil {
		return "", Dashboard{}, sheets.ErrDisabled
	}
	d, err := s.Build(ctx, req)
	if err != nil {
		return "", Dashboard{}, err
	}
	ref, err := s.sheets.WriteReport(ctx, sheetTitle, report.Rows(d.Records, d.Summary))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to export report to sheets",
			log.NewFields().WithOperation(log.OpExport).WithUser(req.UserID).WithError(err).ToSlice()...)
		return "", Dashboard{}, fmt.Errorf("write sheets report: %w", err)
	}
	return ref, d, nil
}

func fetchErr(kind core.Kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %ss: %w", ErrRecordFetchFailed, kind, err)
}
