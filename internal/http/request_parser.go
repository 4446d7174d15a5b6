// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cuzdan/internal/core"
	"cuzdan/internal/services"
)

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 1 << 20

var ErrBadRequest = errors.New("bad request")

// DecodeJSON reads a single JSON object from the request body into v.
// Unknown fields and trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return fmt.Errorf("%w: content type must be application/json", ErrBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrBadRequest)
	}
	return nil
}

// ParseDashboardRequest reads the optional currency and includeLongTermDebt
// overrides from the query string.
func ParseDashboardRequest(userID string, query url.Values) (services.DashboardRequest, error) {
	req := services.DashboardRequest{UserID: userID}

	if v := strings.TrimSpace(query.Get("currency")); v != "" {
		c, err := core.ParseCurrency(v)
		if err != nil {
			return services.DashboardRequest{}, err
		}
		req.Currency = &c
	}

	if v, ok, err := ParseBoolParam(query, "includeLongTermDebt"); err != nil {
		return services.DashboardRequest{}, err
	} else if ok {
		req.IncludeLongTermDebt = &v
	}

	return req, nil
}

// ParseBoolParam returns the value of a boolean query parameter and whether
// it was present at all.
func ParseBoolParam(query url.Values, key string) (value, present bool, err error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return false, false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%w: %s must be true or false", ErrBadRequest, key)
	}
	return b, true, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
