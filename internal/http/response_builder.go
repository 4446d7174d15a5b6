// Package http provides the JSON API server and its handlers.
//
// This file implements a small builder for JSON responses and the mapping
// from domain errors to HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"cuzdan/internal/auth"
	"cuzdan/internal/core"
	"cuzdan/internal/services"
	"cuzdan/internal/sheets"
	"cuzdan/internal/store"
)

// HeaderRateWarning is set whenever the response was computed with the
// fallback exchange rate.
const HeaderRateWarning = "X-Rate-Warning"

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
	raw        []byte
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *JSONResponseBuilder) JSON(v any) *JSONResponseBuilder {
	b.body = v
	b.raw = nil
	return b
}

// Raw sends content unchanged with the given content type.
func (b *JSONResponseBuilder) Raw(contentType string, content []byte) *JSONResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.raw = content
	b.body = nil
	return b
}

// RateWarning adds the fallback-rate header when warning is set.
func (b *JSONResponseBuilder) RateWarning(warning error) *JSONResponseBuilder {
	if warning != nil {
		b.headers[HeaderRateWarning] = warning.Error()
	}
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.raw != nil {
		w.WriteHeader(b.statusCode)
		_, _ = w.Write(b.raw)
		return
	}

	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(payload)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message).Header("WWW-Authenticate", `Bearer realm="cuzdan"`)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// StatusForError maps a domain error to its HTTP status code. Order matters:
// currency errors also wrap ErrValidation on the record path.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidCurrency) && !errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrValidation), errors.Is(err, auth.ErrWeakPassword):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrRecordFetchFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, sheets.ErrDisabled):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFor builds the error response for err. Internal failures are not
// echoed to the client.
func ErrorFor(err error) *JSONResponseBuilder {
	status := StatusForError(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusServiceUnavailable:
		msg = "could not load your records, please retry"
	case http.StatusUnauthorized:
		return UnauthorizedError("unauthenticated")
	case http.StatusNotFound:
		msg = "not found"
	case http.StatusNotImplemented:
		msg = "sheets export is not configured"
	}
	return ErrorResponse(status, msg)
}
