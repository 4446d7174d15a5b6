package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cuzdan/internal/auth"
	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/middleware/ratelimit"
	"cuzdan/internal/middleware/security"
	"cuzdan/internal/middleware/trace"
	"cuzdan/internal/rates"
	"cuzdan/internal/services"
)

// Authenticator issues and checks bearer tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, time.Time, error)
	ValidateToken(token string) (string, error)
}

// RateService is the exchange rate surface the API needs.
type RateService interface {
	CurrentRate(ctx context.Context) rates.Resolution
	Refresh(ctx context.Context, userID string) (rates.Resolution, error)
}

// Deps wires the server to the application services.
type Deps struct {
	Auth      Authenticator
	Records   *services.RecordServices
	Dashboard *services.DashboardService
	Settings  *services.SettingsService
	Rates     RateService
	// Ready reports whether the backing store is reachable.
	Ready func(ctx context.Context) error

	RateLimit ratelimit.Config
	Logger    *log.Logger
}

type Server struct {
	http.Server
	deps     Deps
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIPResolver
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if deps.RateLimit.RequestsPerMinute <= 0 {
		deps.RateLimit = ratelimit.DefaultConfig()
	}

	s := &Server{
		deps:     deps,
		logger:   logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(deps.RateLimit),
		clientIP: security.NewClientIPResolver(),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.clientIP.ClientIP, logger)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.limiter.Middleware(s.clientIP.ClientIP, logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/login", s.handleLogin)

	registerRecordRoutes[core.Income](mux, s, "incomes", s.deps.Records.Incomes, recordCodec[core.Income]{})
	registerRecordRoutes[core.Expense](mux, s, "expenses", s.deps.Records.Expenses, recordCodec[core.Expense]{})
	registerRecordRoutes[core.Debt](mux, s, "debts", s.deps.Records.Debts, debtCodec{})
	registerRecordRoutes[core.Asset](mux, s, "assets", s.deps.Records.Assets, recordCodec[core.Asset]{})

	mux.Handle("GET /api/summary", s.authed(s.handleSummary))
	mux.Handle("GET /api/report.csv", s.authed(s.handleReportCSV))
	mux.Handle("POST /api/report/sheets", s.authed(s.handleReportSheets))
	mux.Handle("GET /api/settings", s.authed(s.handleGetSettings))
	mux.Handle("PUT /api/settings", s.authed(s.handleUpdateSettings))
	mux.Handle("GET /api/rate", s.authed(s.handleGetRate))
	mux.Handle("POST /api/rate/refresh", s.authed(s.handleRefreshRate))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
}

// authed rejects requests without a valid bearer token and stores the user
// id in the request context.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			UnauthorizedError("missing bearer token").Write(w)
			return
		}
		userID, err := s.deps.Auth.ValidateToken(token)
		if err != nil {
			log.FromContext(r.Context()).DebugContext(r.Context(), "Rejected token",
				log.NewFields().WithOperation(log.OpLogin).WithError(err).ToSlice()...)
			UnauthorizedError("invalid or expired token").Write(w)
			return
		}
		ctx := auth.WithUserID(r.Context(), userID)
		ctx = log.WithLogger(ctx, log.FromContext(ctx).With(log.FieldUserID, userID))
		next(w, r.WithContext(ctx))
	})
}

// respondError logs failures that are not the client's fault and writes
// the mapped error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if StatusForError(err) >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithOperation(op).WithError(err).ToSlice()...)
	}
	ErrorFor(err).Write(w)
}

// Shutdown stops the rate limiter cleanup and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
