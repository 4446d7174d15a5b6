// Package core holds the finance domain types shared by every layer.
//
// Amounts are float64 whole-currency units. Fractional cents and kuruş are
// not tracked: every conversion rounds to the nearest whole unit, half away
// from zero.
package core

import "math"

// DefaultRate is the TRY per USD rate used when no live rate is available.
const DefaultRate = 38.76

// RoundUnits rounds to the nearest whole currency unit, half away from zero.
func RoundUnits(v float64) float64 {
	r := math.Round(v)
	if r == 0 {
		// avoid -0 leaking into JSON and CSV output
		return 0
	}
	return r
}

// ValidRate reports whether r can be used as a TRY per USD rate.
func ValidRate(r float64) bool {
	return r > 0 && !math.IsNaN(r) && !math.IsInf(r, 0)
}
