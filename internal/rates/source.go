package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cuzdan/internal/core"
)

// DefaultSourceURL is a free USD based rate feed.
const DefaultSourceURL = "https://open.er-api.com/v6/latest/USD"

// ErrRateFetchFailed covers every way a live rate lookup can go wrong.
var ErrRateFetchFailed = errors.New("exchange rate fetch failed")

// Source returns the live TRY per USD rate.
type Source interface {
	Fetch(ctx context.Context) (float64, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context) (float64, error)

func (f SourceFunc) Fetch(ctx context.Context) (float64, error) { return f(ctx) }

type HTTPSource struct {
	url    string
	client *http.Client
}

type latestResponse struct {
	Result string             `json:"result"`
	Base   string             `json:"base_code"`
	Rates  map[string]float64 `json:"rates"`
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if url == "" {
		url = DefaultSourceURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %w", ErrRateFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRateFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: unexpected status %d", ErrRateFetchFailed, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %w", ErrRateFetchFailed, err)
	}
	rate, ok := body.Rates[string(core.TRY)]
	if !ok {
		return 0, fmt.Errorf("%w: response has no TRY rate", ErrRateFetchFailed)
	}
	if !core.ValidRate(rate) {
		return 0, fmt.Errorf("%w: unusable TRY rate %v", ErrRateFetchFailed, rate)
	}
	return rate, nil
}
