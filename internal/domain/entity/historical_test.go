package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func points(from time.Time, n int, rate float64) []HistoricalPoint {
	out := make([]HistoricalPoint, n)
	for i := 0; i < n; i++ {
		out[i] = HistoricalPoint{Date: from.AddDate(0, 0, i), Rate: rate}
	}
	return out
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	// 20:00 UTC on the 14th is already the 15th at UTC+10
	instant := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, day(2026, 10, 14), Day(instant, time.UTC))
	assert.Equal(t, day(2026, 10, 15), Day(instant, loc))
	assert.Equal(t, day(2026, 10, 13), Yesterday(instant, time.UTC))
	assert.Equal(t, 3, DaysBetween(day(2026, 10, 1), day(2026, 10, 4)))
}

func TestDaysMissing(t *testing.T) {
	yesterday := day(2026, 10, 14)

	t.Run("Up to date", func(t *testing.T) {
		series := &CachedHistoricalSeries{Points: points(day(2026, 10, 1), 14, 1.1)}
		assert.Equal(t, 0, series.DaysMissing(yesterday, 14))
	})

	t.Run("Three days behind", func(t *testing.T) {
		series := &CachedHistoricalSeries{Points: points(day(2026, 9, 28), 14, 1.1)}
		assert.Equal(t, 3, series.DaysMissing(yesterday, 14))
	})

	t.Run("Capped at requested", func(t *testing.T) {
		series := &CachedHistoricalSeries{Points: points(day(2026, 1, 1), 5, 1.1)}
		assert.Equal(t, 7, series.DaysMissing(yesterday, 7))
	})

	t.Run("Empty series", func(t *testing.T) {
		var series *CachedHistoricalSeries
		assert.Equal(t, 30, series.DaysMissing(yesterday, 30))
	})
}

func TestMerge(t *testing.T) {
	yesterday := day(2026, 10, 14)
	fetchedAt := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	series := &CachedHistoricalSeries{
		PairKey: "GBP_EUR",
		Points:  points(day(2026, 9, 28), 14, 1.1),
	}

	// Out of order, with a duplicate of an existing day and a day that is "today"
	incoming := []HistoricalPoint{
		{Date: day(2026, 10, 14), Rate: 1.3},
		{Date: day(2026, 10, 12), Rate: 1.2},
		{Date: day(2026, 10, 11), Rate: 9.9},
		{Date: day(2026, 10, 13), Rate: 1.25},
		{Date: day(2026, 10, 15), Rate: 1.4},
	}

	merged := series.Merge(incoming, yesterday, fetchedAt, 0)

	assert.Equal(t, "GBP_EUR", merged.PairKey)
	assert.Equal(t, fetchedAt, merged.FetchedAt)
	assert.Len(t, merged.Points, 17)

	seen := map[time.Time]bool{}
	for i, p := range merged.Points {
		assert.False(t, seen[p.Date], "duplicate day %s", p.Date)
		seen[p.Date] = true
		if i > 0 {
			assert.True(t, p.Date.After(merged.Points[i-1].Date))
		}
	}

	latest, ok := merged.MostRecentDate()
	assert.True(t, ok)
	assert.Equal(t, yesterday, latest)

	// Existing point for the 11th wins over the incoming duplicate
	assert.Equal(t, 1.1, merged.Points[13].Rate)

	last := merged.Last(14)
	assert.Len(t, last, 14)
	assert.Equal(t, day(2026, 10, 1), last[0].Date)

	// Original series is untouched
	assert.Len(t, series.Points, 14)

	kept := series.Merge(incoming, yesterday, fetchedAt, 10)
	assert.Len(t, kept.Points, 10)
}
