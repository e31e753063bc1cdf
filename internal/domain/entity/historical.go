package entity

import (
	"sort"
	"time"
)

// DateLayout is the calendar-day layout used on the wire and in logs
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day in loc. The result is midnight UTC of
// that day so days compare and subtract without DST surprises.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Yesterday is the newest day the historical endpoint can serve at now
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return Day(now, loc).AddDate(0, 0, -1)
}

// DaysBetween counts whole calendar days from a to b (negative if b is before a)
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// ParseDay parses a YYYY-MM-DD string into a calendar day
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// HistoricalPoint is the rate of a pair on one calendar day
type HistoricalPoint struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"`
}

// CachedHistoricalSeries holds the dated points of one currency pair.
// Points are ascending by date with at most one point per day.
type CachedHistoricalSeries struct {
	PairKey   string            `json:"pair_key"`
	Points    []HistoricalPoint `json:"points"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// MostRecentDate returns the newest day in the series
func (s *CachedHistoricalSeries) MostRecentDate() (time.Time, bool) {
	if s == nil || len(s.Points) == 0 {
		return time.Time{}, false
	}
	return s.Points[len(s.Points)-1].Date, true
}

// EarliestDate returns the oldest day in the series
func (s *CachedHistoricalSeries) EarliestDate() (time.Time, bool) {
	if s == nil || len(s.Points) == 0 {
		return time.Time{}, false
	}
	return s.Points[0].Date, true
}

// DaysMissing counts the trailing days after the newest point up to and
// including yesterday, capped at requested. An empty series misses everything.
func (s *CachedHistoricalSeries) DaysMissing(yesterday time.Time, requested int) int {
	latest, ok := s.MostRecentDate()
	if !ok {
		return requested
	}
	missing := DaysBetween(latest, yesterday)
	if missing < 0 {
		missing = 0
	}
	if missing > requested {
		missing = requested
	}
	return missing
}

// Last returns a copy of the newest n points
func (s *CachedHistoricalSeries) Last(n int) []HistoricalPoint {
	if s == nil || n <= 0 {
		return []HistoricalPoint{}
	}
	start := len(s.Points) - n
	if start < 0 {
		start = 0
	}
	out := make([]HistoricalPoint, len(s.Points)-start)
	copy(out, s.Points[start:])
	return out
}

// Merge returns a new series with extra folded in. Existing points win over
// incoming points for the same day, nothing newer than yesterday is kept, and
// the result is limited to the newest keep points (keep <= 0 means no limit).
func (s *CachedHistoricalSeries) Merge(extra []HistoricalPoint, yesterday, fetchedAt time.Time, keep int) *CachedHistoricalSeries {
	var existing []HistoricalPoint
	key := ""
	if s != nil {
		existing = s.Points
		key = s.PairKey
	}

	merged := SortPoints(append(append([]HistoricalPoint{}, existing...), extra...))

	out := merged[:0]
	for _, p := range merged {
		if p.Date.After(yesterday) || p.Rate <= 0 {
			continue
		}
		out = append(out, p)
	}

	if keep > 0 && len(out) > keep {
		out = out[len(out)-keep:]
	}

	return &CachedHistoricalSeries{
		PairKey:   key,
		Points:    out,
		FetchedAt: fetchedAt,
	}
}

// SortPoints sorts ascending by day and removes later duplicates of a day.
// The sort is stable, so the first occurrence of a day survives.
func SortPoints(points []HistoricalPoint) []HistoricalPoint {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	out := points[:0]
	for i, p := range points {
		if i > 0 && p.Date.Equal(out[len(out)-1].Date) {
			continue
		}
		out = append(out, p)
	}
	return out
}
