// Package observation fetches sensor samples from the observation store and
// guards those fetches with timeouts, retries, a circuit breaker and a
// per-pass cache.
package observation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smukkama/tsa/internal/interval"
)

var (
	// ErrUnavailable means the store rejects all requests
	ErrUnavailable = errors.New("observation store unavailable")
	// ErrTimeout means a single fetch attempt ran out of time. It fails the
	// block being fetched and never trips the breaker.
	ErrTimeout = errors.New("observation fetch timed out")
	// ErrDuplicateTimestamp means a series holds two samples at one instant
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
	// ErrOutOfRange means a sample lies outside the requested range
	ErrOutOfRange = errors.New("sample outside requested range")
)

// Fetcher returns the samples of one station sensor inside [from, until),
// ordered by time
type Fetcher interface {
	Fetch(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error)

func (f FetcherFunc) Fetch(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
	return f(ctx, stationID, sensorID, from, until)
}

// ValidateSeries checks that samples are strictly ascending and inside
// [from, until)
func ValidateSeries(samples []interval.Sample, from, until time.Time) error {
	for i, s := range samples {
		if s.Time.Before(from) || !s.Time.Before(until) {
			return fmt.Errorf("%w: %s not in [%s, %s)", ErrOutOfRange,
				s.Time.Format(time.RFC3339), from.Format(time.RFC3339), until.Format(time.RFC3339))
		}
		if i == 0 {
			continue
		}
		prev := samples[i-1].Time
		if s.Time.Equal(prev) {
			return fmt.Errorf("%w: %s", ErrDuplicateTimestamp, s.Time.Format(time.RFC3339))
		}
		if s.Time.Before(prev) {
			return fmt.Errorf("%w: %s after %s", interval.ErrUnordered,
				s.Time.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}
