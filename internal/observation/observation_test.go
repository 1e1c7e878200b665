package observation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/tsa/internal/interval"
)

var base = time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func val(v float64) *float64 {
	return &v
}

func testGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:          50 * time.Millisecond,
		MaxRetries:       2,
		InitialInterval:  time.Millisecond,
		MaxInterval:      2 * time.Millisecond,
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	}
}

func TestValidateSeries(t *testing.T) {
	ok := []interval.Sample{{Time: at(0), Value: val(1)}, {Time: at(5)}}
	assert.NoError(t, ValidateSeries(ok, at(0), at(10)))
	assert.NoError(t, ValidateSeries(nil, at(0), at(10)))

	dup := []interval.Sample{{Time: at(1)}, {Time: at(1)}}
	assert.ErrorIs(t, ValidateSeries(dup, at(0), at(10)), ErrDuplicateTimestamp)

	unordered := []interval.Sample{{Time: at(2)}, {Time: at(1)}}
	assert.ErrorIs(t, ValidateSeries(unordered, at(0), at(10)), interval.ErrUnordered)

	outside := []interval.Sample{{Time: at(10)}}
	assert.ErrorIs(t, ValidateSeries(outside, at(0), at(10)), ErrOutOfRange)
}

func TestGuarded_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return []interval.Sample{{Time: from, Value: val(1)}}, nil
	})

	g := NewGuarded(inner, testGuardConfig())
	samples, err := g.Fetch(context.Background(), 1, 2, at(0), at(10))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "closed", g.State())
}

func TestGuarded_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		calls.Add(1)
		return nil, boom
	})

	cfg := testGuardConfig()
	cfg.FailureThreshold = 100
	g := NewGuarded(inner, cfg)

	_, err := g.Fetch(context.Background(), 1, 2, at(0), at(10))
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGuarded_AttemptTimeout(t *testing.T) {
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := testGuardConfig()
	cfg.MaxRetries = 0
	cfg.Timeout = 5 * time.Millisecond
	g := NewGuarded(inner, cfg)

	_, err := g.Fetch(context.Background(), 1, 2, at(0), at(10))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestGuarded_TimeoutsKeepBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		calls.Add(1)
		if stationID == 1200 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []interval.Sample{{Time: from, Value: val(1)}}, nil
	})

	cfg := testGuardConfig()
	cfg.Timeout = 5 * time.Millisecond
	g := NewGuarded(inner, cfg)

	// far more timed out attempts than the failure threshold
	for sensor := 0; sensor < 3; sensor++ {
		_, err := g.Fetch(context.Background(), 1200, sensor, at(0), at(10))
		require.ErrorIs(t, err, ErrTimeout)
		require.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(9), calls.Load())
	assert.Equal(t, "closed", g.State())

	samples, err := g.Fetch(context.Background(), 1122, 1, at(0), at(10))
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestGuarded_CallerDeadlineIsNotTimeout(t *testing.T) {
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	cfg := testGuardConfig()
	cfg.Timeout = time.Minute
	g := NewGuarded(inner, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := g.Fetch(ctx, 1, 2, at(0), at(10))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "closed", g.State())
}

func TestGuarded_OpenBreakerIsUnavailable(t *testing.T) {
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		return nil, errors.New("down")
	})

	cfg := testGuardConfig()
	cfg.MaxRetries = 5
	g := NewGuarded(inner, cfg)

	// three failed attempts trip the breaker, the next one is rejected
	_, err := g.Fetch(context.Background(), 1, 2, at(0), at(10))
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "open", g.State())

	_, err = g.Fetch(context.Background(), 3, 4, at(0), at(10))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGuarded_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		cancel()
		return nil, ctx.Err()
	})

	g := NewGuarded(inner, testGuardConfig())
	_, err := g.Fetch(ctx, 1, 2, at(0), at(10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "closed", g.State())
}

func TestCache_DeduplicatesFetches(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		calls.Add(1)
		<-release
		return []interval.Sample{{Time: from, Value: val(float64(sensorID))}}, nil
	})

	c, err := NewCache(inner, 16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			samples, err := c.Fetch(context.Background(), 1, 2, at(0), at(10))
			assert.NoError(t, err)
			assert.Len(t, samples, 1)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	_, err = c.Fetch(context.Background(), 1, 2, at(0), at(10))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.Fetch(context.Background(), 1, 3, at(0), at(10))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCache_DoesNotCacheErrors(t *testing.T) {
	var calls atomic.Int32
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("flaky")
		}
		return nil, nil
	})

	c, err := NewCache(inner, 4)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), 1, 2, at(0), at(10))
	assert.Error(t, err)
	_, err = c.Fetch(context.Background(), 1, 2, at(0), at(10))
	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCache_WaitersKeepTheirOwnContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return []interval.Sample{{Time: from, Value: val(1)}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	c, err := NewCache(inner, 4)
	require.NoError(t, err)

	// the first caller gives up early; the second one must still get the series
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Fetch(short, 1, 2, at(0), at(10))
		firstErr <- err
	}()
	<-started

	secondDone := make(chan []interval.Sample, 1)
	go func() {
		samples, err := c.Fetch(context.Background(), 1, 2, at(0), at(10))
		assert.NoError(t, err)
		secondDone <- samples
	}()

	assert.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	close(release)

	assert.Len(t, <-secondDone, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCache_AbandonedFetchIsCancelled(t *testing.T) {
	cancelled := make(chan struct{})
	inner := FetcherFunc(func(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})

	c, err := NewCache(inner, 4)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err = c.Fetch(ctx, 1, 2, at(0), at(10))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("shared fetch still running after its only caller left")
	}
	assert.Zero(t, c.Len())
}
