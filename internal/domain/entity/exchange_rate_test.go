package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateTable(t *testing.T) {
	table := RateTable{"USD": 1.0, "EUR": 0.9, "GBP": 0.8}

	t.Run("Cross conversion", func(t *testing.T) {
		amount, ok := table.Convert("USD", 100, "EUR", "GBP")
		assert.True(t, ok)
		assert.InDelta(t, 88.888, amount, 0.001) // (100 / 0.9) * 0.8
	})

	t.Run("From base", func(t *testing.T) {
		amount, ok := table.Convert("USD", 100, "USD", "EUR")
		assert.True(t, ok)
		assert.InDelta(t, 90.0, amount, 1e-9)
	})

	t.Run("To base", func(t *testing.T) {
		amount, ok := table.Convert("USD", 90, "EUR", "USD")
		assert.True(t, ok)
		assert.InDelta(t, 100.0, amount, 1e-9)
	})

	t.Run("Rates", func(t *testing.T) {
		rate, ok := table.Rate("USD", "USD", "EUR")
		assert.True(t, ok)
		assert.Equal(t, 0.9, rate)

		rate, ok = table.Rate("USD", "EUR", "USD")
		assert.True(t, ok)
		assert.InDelta(t, 1.111, rate, 0.001)

		rate, ok = table.Rate("USD", "EUR", "GBP")
		assert.True(t, ok)
		assert.InDelta(t, 0.8/0.9, rate, 1e-12)
	})

	t.Run("Rates are reciprocal", func(t *testing.T) {
		codes := []string{"USD", "EUR", "GBP"}
		for _, from := range codes {
			for _, to := range codes {
				forward, ok := table.Rate("USD", from, to)
				assert.True(t, ok)
				backward, ok := table.Rate("USD", to, from)
				assert.True(t, ok)
				assert.InDelta(t, 1.0, forward*backward, 1e-12, "%s/%s", from, to)
			}
		}
	})

	t.Run("Unknown currency", func(t *testing.T) {
		_, ok := table.Rate("USD", "EUR", "XYZ")
		assert.False(t, ok)

		_, ok = table.Convert("USD", 10, "XYZ", "USD")
		assert.False(t, ok)
	})
}

func TestRateTableNormalize(t *testing.T) {
	raw := RateTable{"EUR": 0.9, "BAD": -1, "ZERO": 0, "usd": 2, "JPY": 150}

	normalized, dropped := raw.Normalize("USD")

	assert.Equal(t, 1.0, normalized["USD"])
	assert.Equal(t, 0.9, normalized["EUR"])
	assert.Equal(t, 150.0, normalized["JPY"])
	assert.Len(t, normalized, 3)
	assert.ElementsMatch(t, []string{"BAD", "ZERO", "usd"}, dropped)

	// Original table is untouched
	assert.Len(t, raw, 5)
}

func TestPairKey(t *testing.T) {
	key := PairKey("GBP", "EUR")
	assert.Equal(t, "GBP_EUR", key)

	from, to, ok := SplitPairKey(key)
	assert.True(t, ok)
	assert.Equal(t, "GBP", from)
	assert.Equal(t, "EUR", to)

	_, _, ok = SplitPairKey("GBPEUR")
	assert.False(t, ok)

	assert.Equal(t, "EUR", NormalizeCode(" eur "))
	assert.False(t, IsCurrencyCode("EU"))
	assert.False(t, IsCurrencyCode("E1R"))
}
