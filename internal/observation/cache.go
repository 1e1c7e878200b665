package observation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/smukkama/tsa/internal/interval"
)

// Cache deduplicates identical fetches within one evaluation pass. Concurrent
// requests for the same key share one call to the wrapped Fetcher; failed
// fetches are not cached. Cached slices must not be modified.
//
// A shared call does not inherit the deadline or cancellation of the caller
// that started it. Every caller waits on its own context, and the call is
// cancelled once no caller is waiting for it any more.
type Cache struct {
	next  Fetcher
	lru   *lru.Cache
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]*flight
}

// errAbandoned ends a shared call cancelled because no caller waits for it
var errAbandoned = errors.New("fetch abandoned by all callers")

// flight is the context of one shared call
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewCache creates a new cache holding up to size series
func NewCache(next Fetcher, size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch cache: %w", err)
	}
	return &Cache{next: next, lru: c, inflight: make(map[string]*flight)}, nil
}

func cacheKey(stationID, sensorID int, from, until time.Time) string {
	return fmt.Sprintf("%d:%d:%d:%d", stationID, sensorID, from.UnixNano(), until.UnixNano())
}

// Fetch implements Fetcher
func (c *Cache) Fetch(ctx context.Context, stationID, sensorID int, from, until time.Time) ([]interval.Sample, error) {
	key := cacheKey(stationID, sensorID, from, until)

	for {
		if v, ok := c.lru.Get(key); ok {
			cacheHits.Inc()
			return v.([]interval.Sample), nil
		}

		f := c.join(ctx, key)
		ch := c.group.DoChan(key, func() (interface{}, error) {
			defer c.finish(key, f)
			samples, err := c.next.Fetch(f.ctx, stationID, sensorID, from, until)
			if err != nil {
				if f.ctx.Err() != nil {
					return nil, errAbandoned
				}
				return nil, err
			}
			c.lru.Add(key, samples)
			return samples, nil
		})

		select {
		case <-ctx.Done():
			c.leave(key, f)
			return nil, ctx.Err()
		case res := <-ch:
			c.leave(key, f)
			if res.Err != nil {
				// joined a call that every earlier caller had left
				if errors.Is(res.Err, errAbandoned) {
					continue
				}
				return nil, res.Err
			}
			return res.Val.([]interval.Sample), nil
		}
	}
}

// join registers the caller on the flight of key, starting one if needed
func (c *Cache) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.inflight[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.inflight[key] = f
	}
	f.waiters++
	return f
}

// leave drops the caller from f and cancels f when nobody waits for it
func (c *Cache) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.inflight[key] == f {
		delete(c.inflight, key)
	}
}

// finish forgets f once its call has returned
func (c *Cache) finish(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight[key] == f {
		delete(c.inflight, key)
	}
}

// Len returns the number of cached series
func (c *Cache) Len() int {
	return c.lru.Len()
}
