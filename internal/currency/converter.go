// Package currency converts amounts between USD and TRY using one rate.
package currency

import (
	"fmt"

	"cuzdan/internal/core"
)

// ErrInvalidCurrency is returned for any code other than USD or TRY.
var ErrInvalidCurrency = core.ErrInvalidCurrency

// RateSource supplies the TRY per USD rate for a conversion.
type RateSource interface {
	CurrentRate() float64
}

// FixedRate is a RateSource pinned to one value, used so that every
// conversion in a single computation observes the same rate.
type FixedRate float64

func (r FixedRate) CurrentRate() float64 { return float64(r) }

type Converter struct {
	rates RateSource
}

func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// Convert returns amount expressed in the target currency. Equal currencies
// return amount untouched without consulting the rate; cross conversions are
// rounded to whole units.
func (c *Converter) Convert(amount float64, from, to core.Currency) (float64, error) {
	if !from.Valid() {
		return 0, fmt.Errorf("%w: from %q", ErrInvalidCurrency, from)
	}
	if !to.Valid() {
		return 0, fmt.Errorf("%w: to %q", ErrInvalidCurrency, to)
	}
	if from == to {
		return amount, nil
	}

	rate := c.Rate()
	if !core.ValidRate(rate) {
		rate = core.DefaultRate
	}
	if from == core.TRY {
		return core.RoundUnits(amount / rate), nil
	}
	return core.RoundUnits(amount * rate), nil
}

// Rate is the rate this converter currently uses.
func (c *Converter) Rate() float64 {
	if c.rates == nil {
		return core.DefaultRate
	}
	return c.rates.CurrentRate()
}
