package observation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/smukkama/tsa/internal/interval"
	"github.com/smukkama/tsa/internal/logger"
)

// GuardConfig tunes Guarded
type GuardConfig struct {
	// Timeout bounds a single fetch attempt
	Timeout time.Duration
	// MaxRetries is the number of retries after the first failed attempt
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// FailureThreshold consecutive failures open the breaker
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
}

// DefaultGuardConfig returns the settings used when none are configured
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:          30 * time.Second,
		MaxRetries:       3,
		InitialInterval:  200 * time.Millisecond,
		MaxInterval:      5 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Guarded wraps a Fetcher with a per-attempt timeout, exponential retries and
// a circuit breaker. Once the breaker is open every fetch fails with
// ErrUnavailable.
type Guarded struct {
	next    Fetcher
	cfg     GuardConfig
	breaker *gobreaker.CircuitBreaker[[]interval.Sample]
	logger  *zap.SugaredLogger
}

// NewGuarded creates a new Guarded fetcher
func NewGuarded(next Fetcher, cfg GuardConfig) *Guarded {
	cb := gobreaker.NewCircuitBreaker[[]interval.Sample](gobreaker.Settings{
		Name:        "observation-store",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: isBreakerSuccess,
	})

	return &Guarded{
		next:    next,
		cfg:     cfg,
		breaker: cb,
		logger:  logger.For(logger.ComponentObservation),
	}
}

// isBreakerSuccess reports whether err leaves the breaker counts alone.
// Only store and connection failures count; timeouts and cancellation are
// the caller's business.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// attempt runs one fetch under the per-attempt timeout. A failure caused by
// that timeout, while ctx itself is still live, is reported as ErrTimeout.
func (g *Guarded) attempt(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
	if g.cfg.Timeout <= 0 {
		return g.next.Fetch(ctx, stationID, sensorID, from, until)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	samples, err := g.next.Fetch(fetchCtx, stationID, sensorID, from, until)
	if err != nil && ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v: %w", ErrTimeout, g.cfg.Timeout, err)
	}
	return samples, err
}

func (g *Guarded) newBackOff() backoff.BackOff {
	if g.cfg.MaxRetries == 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.InitialInterval
	b.MaxInterval = g.cfg.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, g.cfg.MaxRetries)
}

// Fetch implements Fetcher
func (g *Guarded) Fetch(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
	b := g.newBackOff()

	for attempt := 1; ; attempt++ {
		start := time.Now()
		samples, err := g.breaker.Execute(func() ([]interval.Sample, error) {
			return g.attempt(ctx, stationID, sensorID, from, until)
		})
		if err == nil {
			fetchDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
			return samples, nil
		}
		fetchDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			breakerRejections.Inc()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil, fmt.Errorf("failed to fetch station %d sensor %d after %d attempts: %w", stationID, sensorID, attempt, err)
		}

		fetchRetries.Inc()
		g.logger.Debugf("Fetch of station %d sensor %d failed (attempt %d), retrying in %v: %v", stationID, sensorID, attempt, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// State returns the breaker state name
func (g *Guarded) State() string {
	return g.breaker.State().String()
}
