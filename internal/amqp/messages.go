package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuzdan/internal/core"
)

var ErrInvalidMessage = errors.New("invalid rate message")

// RateUpdatedMessage announces a freshly fetched exchange rate to every
// process sharing the exchange.
type RateUpdatedMessage struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Rate        float64   `json:"rate"`
	UpdatedAt   time.Time `json:"updated_at"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

func NewRateUpdatedMessage(rate core.ExchangeRate, source string) *RateUpdatedMessage {
	return &RateUpdatedMessage{
		From:        string(rate.From),
		To:          string(rate.To),
		Rate:        rate.Rate,
		UpdatedAt:   rate.UpdatedAt.UTC(),
		Source:      source,
		PublishedAt: time.Now().UTC(),
	}
}

func (m *RateUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RateUpdatedMessageFromJSON(data []byte) (*RateUpdatedMessage, error) {
	var msg RateUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExchangeRate validates the message and converts it back to the domain type.
func (m *RateUpdatedMessage) ExchangeRate() (core.ExchangeRate, error) {
	from, err := core.ParseCurrency(m.From)
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	to, err := core.ParseCurrency(m.To)
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if from != core.USD || to != core.TRY {
		return core.ExchangeRate{}, fmt.Errorf("%w: unsupported pair %s/%s", ErrInvalidMessage, from, to)
	}
	if !core.ValidRate(m.Rate) {
		return core.ExchangeRate{}, fmt.Errorf("%w: rate %v", ErrInvalidMessage, m.Rate)
	}
	if m.UpdatedAt.IsZero() {
		return core.ExchangeRate{}, fmt.Errorf("%w: missing timestamp", ErrInvalidMessage)
	}
	return core.ExchangeRate{From: from, To: to, Rate: m.Rate, UpdatedAt: m.UpdatedAt}, nil
}
