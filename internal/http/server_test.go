package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cuzdan/internal/auth"
	"cuzdan/internal/core"
	"cuzdan/internal/middleware/ratelimit"
	"cuzdan/internal/rates"
	"cuzdan/internal/services"
	sheetsmem "cuzdan/internal/sheets/memory"
	"cuzdan/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv      *Server
	repo     *memory.Store
	auth     *auth.Service
	sheets   *sheetsmem.Store
	token    string
	userID   string
	rate     atomic.Value // float64; zero means the source fails
	fetches  atomic.Int32
	readyErr error
}

type envOption func(*testEnv, *Deps)

func withoutSheets() envOption {
	return func(e *testEnv, d *Deps) {
		d.Dashboard = services.NewDashboardService(e.repo, d.Settings, d.Rates, nil,
			services.WithDashboardClock(func() time.Time { return testNow }))
	}
}

func withRateLimit(rpm int) envOption {
	return func(_ *testEnv, d *Deps) {
		d.RateLimit = ratelimit.Config{RequestsPerMinute: rpm, Burst: rpm}
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	e := &testEnv{repo: memory.New(), sheets: sheetsmem.New()}
	e.rate.Store(40.0)
	e.auth = auth.NewService(testSecret, time.Hour, e.repo, auth.WithBcryptCost(bcrypt.MinCost))

	user, err := e.auth.Register(ctx, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	e.userID = user.ID
	e.token, _, err = e.auth.IssueToken(user.ID)
	require.NoError(t, err)

	source := rates.SourceFunc(func(context.Context) (float64, error) {
		e.fetches.Add(1)
		r := e.rate.Load().(float64)
		if r == 0 {
			return 0, errors.New("upstream down")
		}
		return r, nil
	})

	settings := services.NewSettingsService(e.repo, nil, nil)
	provider := rates.NewProvider(source, rates.Options{Rates: e.repo, Settings: settings})
	deps := Deps{
		Auth:     e.auth,
		Records:  services.NewRecordServices(e.repo, nil),
		Settings: settings,
		Rates:    provider,
		Dashboard: services.NewDashboardService(e.repo, settings, provider, nil,
			services.WithReportWriter(e.sheets),
			services.WithDashboardClock(func() time.Time { return testNow })),
		Ready:     func(ctx context.Context) error { return e.readyErr },
		RateLimit: ratelimit.Config{RequestsPerMinute: 10000},
	}
	for _, o := range opts {
		o(e, &deps)
	}

	e.srv = NewServer(":0", deps)
	t.Cleanup(func() { e.srv.limiter.Stop() })
	return e
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, e.token, method, path, body)
}

func (e *testEnv) doAs(t *testing.T, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := e.doAs(t, "", http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), path)
		assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"), path)
	}

	e.readyErr = errors.New("db gone")
	rr := e.doAs(t, "", http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/api/summary", "/api/incomes", "/api/settings", "/api/rate", "/api/report.csv"} {
		rr := e.doAs(t, "", http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)

		rr = e.doAs(t, "not-a-token", http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	rr := e.doAs(t, "", http.MethodPost, "/api/login", `{"email":"ADA@example.com","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[loginResponse](t, rr)
	require.NotEmpty(t, resp.Token)

	rr = e.doAs(t, resp.Token, http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = e.doAs(t, "", http.MethodPost, "/api/login", `{"email":"ada@example.com","password":"wrong-horse"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.doAs(t, "", http.MethodPost, "/api/login", `{"email":"","password":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = e.doAs(t, "", http.MethodPost, "/api/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIncomeCRUD(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/incomes",
		`{"title":" Invoice 42 ","amount":1000,"currency":"usd","category":"freelance","date":"2025-03-01T00:00:00Z","status":"received"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[core.Income](t, rr)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Invoice 42", created.Title)
	assert.Equal(t, core.USD, created.Currency)

	rr = e.do(t, http.MethodGet, "/api/incomes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]core.Income](t, rr), 1)

	rr = e.do(t, http.MethodPut, "/api/incomes/"+created.ID,
		`{"title":"Invoice 42","amount":1200,"currency":"USD","category":"freelance","date":"2025-03-01T00:00:00Z","status":"received"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1200.0, decode[core.Income](t, rr).Amount)

	rr = e.do(t, http.MethodGet, "/api/incomes/"+created.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1200.0, decode[core.Income](t, rr).Amount)

	rr = e.do(t, http.MethodDelete, "/api/incomes/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/incomes/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecordValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"empty title", "/api/expenses", `{"title":"  ","amount":10,"currency":"USD","date":"2025-03-01T00:00:00Z","type":"one-time"}`, http.StatusUnprocessableEntity},
		{"negative amount", "/api/expenses", `{"title":"Rent","amount":-1,"currency":"USD","date":"2025-03-01T00:00:00Z","type":"one-time"}`, http.StatusUnprocessableEntity},
		{"unknown record currency", "/api/expenses", `{"title":"Rent","amount":1,"currency":"EUR","date":"2025-03-01T00:00:00Z","type":"one-time"}`, http.StatusUnprocessableEntity},
		{"unknown field", "/api/assets", `{"title":"Gold","bogus":true}`, http.StatusBadRequest},
		{"bad status", "/api/debts", `{"title":"Loan","amount":1,"currency":"USD","deadline":"2025-03-20T00:00:00Z","status":"forgotten"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestRecordsAreScopedToUser(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/assets", `{"title":"Gold","type":"metal","amount":2,"unit":"oz","current_price":2000}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	asset := decode[core.Asset](t, rr)

	other, err := e.auth.Register(context.Background(), "bob@example.com", "another-horse")
	require.NoError(t, err)
	otherToken, _, err := e.auth.IssueToken(other.ID)
	require.NoError(t, err)

	rr = e.doAs(t, otherToken, http.MethodGet, "/api/assets/"+asset.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = e.doAs(t, otherToken, http.MethodGet, "/api/assets", "")
	assert.Empty(t, decode[[]core.Asset](t, rr))
}

func TestDebtNoFixedDate(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/debts",
		`{"title":"Family loan","amount":500,"currency":"USD","creditor":"Aunt","is_long_term":true,"status":"pending","noFixedDate":true}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[debtPayload](t, rr)
	assert.True(t, created.NoFixedDate)
	assert.True(t, core.IsNoFixedDeadline(created.Deadline))

	rr = e.do(t, http.MethodPost, "/api/debts",
		`{"title":"Card","amount":50,"currency":"TRY","creditor":"Bank","deadline":"2025-03-12T00:00:00Z","status":"pending"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.False(t, decode[debtPayload](t, rr).NoFixedDate)
}

func TestSummary(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/incomes",
		`{"title":"Salary","amount":1000,"currency":"USD","category":"other","date":"2025-03-01T00:00:00Z","status":"received"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = e.do(t, http.MethodPost, "/api/debts",
		`{"title":"Card","amount":4000,"currency":"TRY","creditor":"Bank","deadline":"2025-03-12T00:00:00Z","status":"pending"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodGet, "/api/summary?currency=TRY", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, rr.Header().Get(HeaderRateWarning))

	resp := decode[summaryResponse](t, rr)
	assert.Equal(t, core.TRY, resp.Summary.DisplayCurrency)
	assert.Equal(t, 40.0, resp.Rate.Rate)
	assert.Equal(t, 40000.0, resp.Summary.CurrentCash)
	assert.Equal(t, 4000.0, resp.Summary.ShortTermDebt)
	assert.Equal(t, 36000.0, resp.Summary.AvailableBalance)
	require.Len(t, resp.Summary.UrgentDebts, 1)
	assert.Equal(t, 2, resp.Summary.UrgentDebts[0].DaysLeft)

	rr = e.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.USD, decode[summaryResponse](t, rr).Summary.DisplayCurrency)
}

func TestSummaryFallbackRate(t *testing.T) {
	e := newTestEnv(t)
	e.rate.Store(0.0)

	rr := e.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(HeaderRateWarning))

	resp := decode[summaryResponse](t, rr)
	assert.Equal(t, core.DefaultRate, resp.Rate.Rate)
	assert.Equal(t, rates.OriginFallback, resp.Rate.Origin)
	assert.NotEmpty(t, resp.RateWarning)
}

func TestSummaryBadQuery(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/api/summary?currency=EUR", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(t, http.MethodGet, "/api/summary?includeLongTermDebt=perhaps", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReportCSV(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/api/expenses",
		`{"title":"Rent","amount":300,"currency":"USD","date":"2025-03-01T00:00:00Z","type":"recurring","category":"home"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = e.do(t, http.MethodGet, "/api/report.csv", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="financial-report-2025-03-10.csv"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Type,Title,Amount,Status,Date,Notes\n"))
	assert.Contains(t, rr.Body.String(), "Expense,Rent,")
}

func TestReportSheets(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodPost, "/api/report/sheets", `{"sheet":"March"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[sheetsExportResponse](t, rr)
	assert.True(t, strings.HasPrefix(resp.Range, "mem:March!A1"), resp.Range)
	tab, ok := e.sheets.Tab("March")
	require.True(t, ok)
	assert.NotEmpty(t, tab)

	rr = e.do(t, http.MethodPost, "/api/report/sheets", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	tab, ok = e.sheets.Tab("Report")
	require.True(t, ok)
	assert.NotEmpty(t, tab)
}

func TestReportSheetsDisabled(t *testing.T) {
	e := newTestEnv(t, withoutSheets())

	rr := e.do(t, http.MethodPost, "/api/report/sheets", "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestSettings(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.USD, decode[core.Settings](t, rr).DisplayCurrency)

	rr = e.do(t, http.MethodPut, "/api/settings", `{"default_currency":"try","include_long_term_debt":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	st := decode[core.Settings](t, rr)
	assert.Equal(t, core.TRY, st.DisplayCurrency)
	assert.True(t, st.IncludeLongTermDebt)

	rr = e.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	sum := decode[summaryResponse](t, rr).Summary
	assert.Equal(t, core.TRY, sum.DisplayCurrency)
	assert.True(t, sum.IncludeLongTermDebt)

	rr = e.do(t, http.MethodPut, "/api/settings", `{"default_currency":"GBP"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRateEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/api/rate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 40.0, decode[rateResponse](t, rr).Rate)

	rr = e.do(t, http.MethodGet, "/api/rate", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, rates.OriginCache, decode[rateResponse](t, rr).Origin)
	assert.Equal(t, int32(1), e.fetches.Load())

	e.rate.Store(41.5)
	rr = e.do(t, http.MethodPost, "/api/rate/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	refreshed := decode[rateResponse](t, rr)
	assert.Equal(t, 41.5, refreshed.Rate)
	assert.Equal(t, rates.OriginLive, refreshed.Origin)

	rr = e.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 41.5, decode[core.Settings](t, rr).RateValue)
}

func TestRateRefreshFailureKeepsSettings(t *testing.T) {
	e := newTestEnv(t)
	e.rate.Store(0.0)

	rr := e.do(t, http.MethodPost, "/api/rate/refresh", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(HeaderRateWarning))
	assert.Equal(t, core.DefaultRate, decode[rateResponse](t, rr).Rate)

	rr = e.do(t, http.MethodGet, "/api/settings", "")
	assert.Zero(t, decode[core.Settings](t, rr).RateValue)
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, withRateLimit(2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, e.doAs(t, "", http.MethodGet, "/healthz", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestUnknownAPIPath(t *testing.T) {
	e := newTestEnv(t)

	rr := e.do(t, http.MethodGet, "/api/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}
