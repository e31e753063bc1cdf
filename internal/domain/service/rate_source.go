package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/damon-houk/fx-rate-engine/internal/domain/entity"
)

// RateSource defines the interface for a provider of exchange rate data
type RateSource interface {
	// Name identifies the source in logs, metrics and cached snapshots
	Name() string

	// FetchLatest retrieves the current rate table expressed against base
	FetchLatest(ctx context.Context, base string) (entity.RateTable, error)

	// FetchDay retrieves the from->to rate for a single calendar day
	FetchDay(ctx context.Context, from, to string, day time.Time) (entity.HistoricalPoint, error)

	// FetchRange retrieves the from->to rates for every available day in [start, end]
	FetchRange(ctx context.Context, from, to string, start, end time.Time) ([]entity.HistoricalPoint, error)
}

// Failure kinds a RateSource reports. Match them with errors.Is.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrTransport        = errors.New("transport failure")
	ErrHTTPStatus       = errors.New("unexpected http status")
	ErrDecoding         = errors.New("response decoding failure")
)

// SourceError describes a failed RateSource operation
type SourceError struct {
	Op         string
	Kind       error
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is matches the failure kind so callers can test errors.Is(err, ErrTransport)
func (e *SourceError) Is(target error) bool {
	return target == e.Kind
}

// Recoverable reports whether the failure should trigger the fallback chain
// rather than being treated as a programming error.
func Recoverable(err error) bool {
	return !errors.Is(err, ErrMalformedRequest)
}

// StatusCode extracts the HTTP status of an ErrHTTPStatus failure, or 0
func StatusCode(err error) int {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.StatusCode
	}
	return 0
}
