package http

import (
	"context"
	"net/http"
	"time"

	"cuzdan/internal/auth"
	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/rates"
	"cuzdan/internal/services"
)

const readyTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports 503 until the backing store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			NewJSONResponse().Status(http.StatusServiceUnavailable).
				JSON(map[string]string{"status": "not_ready", "error": "store unavailable"}).
				Write(w)
			return
		}
	}
	NewJSONResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	email := sanitizeInput(req.Email)
	if email == "" || req.Password == "" {
		UnprocessableEntityError("email and password are required").Write(w)
		return
	}

	token, exp, err := s.deps.Auth.Login(r.Context(), email, req.Password)
	if err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Login failed",
			log.NewFields().WithOperation(log.OpLogin).WithError(err).ToSlice()...)
		s.respondError(w, r, log.OpLogin, err)
		return
	}
	NewJSONResponse().JSON(loginResponse{Token: token, ExpiresAt: exp.UTC()}).Write(w)
}

// rateResponse describes the rate a response was computed with.
type rateResponse struct {
	From      core.Currency `json:"from"`
	To        core.Currency `json:"to"`
	Rate      float64       `json:"rate"`
	Origin    rates.Origin  `json:"origin"`
	FetchedAt time.Time     `json:"fetched_at"`
	Warning   string        `json:"rateWarning,omitempty"`
}

func newRateResponse(res rates.Resolution) rateResponse {
	out := rateResponse{
		From:      core.USD,
		To:        core.TRY,
		Rate:      res.Rate,
		Origin:    res.Origin,
		FetchedAt: res.FetchedAt.UTC(),
	}
	if res.Warning != nil {
		out.Warning = res.Warning.Error()
	}
	return out
}

type summaryResponse struct {
	Summary     core.Summary  `json:"summary"`
	Rate        rateResponse  `json:"rate"`
	Settings    core.Settings `json:"settings"`
	RateWarning string        `json:"rateWarning,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	req, err := ParseDashboardRequest(auth.UserID(r.Context()), r.URL.Query())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	d, err := s.deps.Dashboard.Build(r.Context(), req)
	if err != nil {
		s.respondError(w, r, log.OpSummarize, err)
		return
	}
	rate := newRateResponse(d.Rate)
	NewJSONResponse().
		RateWarning(d.Rate.Warning).
		JSON(summaryResponse{Summary: d.Summary, Rate: rate, Settings: d.Settings, RateWarning: rate.Warning}).
		Write(w)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	req, err := ParseDashboardRequest(auth.UserID(r.Context()), r.URL.Query())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	data, filename, d, err := s.deps.Dashboard.ExportCSV(r.Context(), req)
	if err != nil {
		s.respondError(w, r, log.OpExport, err)
		return
	}
	NewJSONResponse().
		RateWarning(d.Rate.Warning).
		Header("Content-Disposition", `attachment; filename="`+filename+`"`).
		Raw("text/csv; charset=utf-8", data).
		Write(w)
}

type sheetsExportRequest struct {
	Sheet string `json:"sheet"`
}

type sheetsExportResponse struct {
	Range       string `json:"range"`
	RateWarning string `json:"rateWarning,omitempty"`
}

func (s *Server) handleReportSheets(w http.ResponseWriter, r *http.Request) {
	req, err := ParseDashboardRequest(auth.UserID(r.Context()), r.URL.Query())
	if err != nil {
		ErrorFor(err).Write(w)
		return
	}
	var body sheetsExportRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &body); err != nil {
			ErrorFor(err).Write(w)
			return
		}
	}

	ref, d, err := s.deps.Dashboard.ExportSheets(r.Context(), req, sanitizeInput(body.Sheet))
	if err != nil {
		s.respondError(w, r, log.OpExport, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Exported report to sheets",
		log.NewFields().WithOperation(log.OpExport).ToSlice()...)

	resp := sheetsExportResponse{Range: ref}
	if d.Rate.Warning != nil {
		resp.RateWarning = d.Rate.Warning.Error()
	}
	NewJSONResponse().RateWarning(d.Rate.Warning).JSON(resp).Write(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().JSON(st).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var u services.SettingsUpdate
	if err := DecodeJSON(w, r, &u); err != nil {
		ErrorFor(err).Write(w)
		return
	}
	st, err := s.deps.Settings.Update(r.Context(), auth.UserID(r.Context()), u)
	if err != nil {
		s.respondError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().JSON(st).Write(w)
}

func (s *Server) handleGetRate(w http.ResponseWriter, r *http.Request) {
	res := s.deps.Rates.CurrentRate(r.Context())
	NewJSONResponse().RateWarning(res.Warning).JSON(newRateResponse(res)).Write(w)
}

// handleRefreshRate forces a live fetch. A failed fetch still answers 200
// with the fallback rate and a warning.
func (s *Server) handleRefreshRate(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Rates.Refresh(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondError(w, r, log.OpRefresh, err)
		return
	}
	NewJSONResponse().RateWarning(res.Warning).JSON(newRateResponse(res)).Write(w)
}
