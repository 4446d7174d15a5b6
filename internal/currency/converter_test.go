package currency

import (
	"testing"

	"cuzdan/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	rate  float64
	calls int
}

func (s *countingSource) CurrentRate() float64 {
	s.calls++
	return s.rate
}

func TestConvertSameCurrencyIsExact(t *testing.T) {
	src := &countingSource{rate: 30}
	conv := NewConverter(src)

	for _, a := range []float64{0, 0.37, 12.5, 1e9 + 0.01} {
		for _, c := range []core.Currency{core.USD, core.TRY} {
			got, err := conv.Convert(a, c, c)
			require.NoError(t, err)
			assert.Equal(t, a, got)
		}
	}
	assert.Zero(t, src.calls, "identity conversion must not look up the rate")
}

func TestConvertCrossCurrency(t *testing.T) {
	conv := NewConverter(FixedRate(30))

	got, err := conv.Convert(1000, core.TRY, core.USD)
	require.NoError(t, err)
	assert.Equal(t, 33.0, got)

	got, err = conv.Convert(200, core.USD, core.TRY)
	require.NoError(t, err)
	assert.Equal(t, 6000.0, got)

	got, err = conv.Convert(45, core.TRY, core.USD)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got, "1.5 rounds half away from zero")
}

func TestConvertRoundTripWithinOneUnit(t *testing.T) {
	for _, rate := range []float64{1.1, 30, 38.76, 41.3371} {
		conv := NewConverter(FixedRate(rate))
		for _, a := range []float64{1, 7, 99, 1234, 98765} {
			try, err := conv.Convert(a, core.USD, core.TRY)
			require.NoError(t, err)
			back, err := conv.Convert(try, core.TRY, core.USD)
			require.NoError(t, err)
			assert.InDelta(t, a, back, 1, "rate=%v amount=%v", rate, a)
		}
	}
}

func TestConvertInvalidCurrency(t *testing.T) {
	conv := NewConverter(FixedRate(30))

	_, err := conv.Convert(1, "EUR", core.USD)
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = conv.Convert(1, core.USD, "")
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = conv.Convert(1, "GBP", "GBP")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestConvertFallsBackOnUnusableRate(t *testing.T) {
	conv := NewConverter(FixedRate(0))
	got, err := conv.Convert(1, core.USD, core.TRY)
	require.NoError(t, err)
	assert.Equal(t, core.RoundUnits(core.DefaultRate), got)

	assert.Equal(t, core.DefaultRate, NewConverter(nil).Rate())
}
