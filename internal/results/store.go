// Package results keeps evaluation results in Redis for report generation.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/tsa/internal/analysis"
	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/logger"
)

// DefaultTTL is how long results stay available
const DefaultTTL = 7 * 24 * time.Hour

// client is the subset of *redis.Client used by Store
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
}

// Store saves condition results and error reports of evaluation runs
type Store struct {
	redis  client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewStore creates a new result store. A non-positive ttl selects DefaultTTL.
func NewStore(redisClient client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.For(logger.ComponentResults),
	}
}

var keyReplacer = strings.NewReplacer(" ", "_", ":", "_", "*", "_", "?", "_", "[", "_", "]", "_")

func collectionKey(title string) string {
	return keyReplacer.Replace(strings.ToLower(strings.TrimSpace(title)))
}

func resultKey(runID, collection string, key block.Ref) string {
	return fmt.Sprintf("tsa:result:%s:%s:%s", runID, collectionKey(collection), key)
}

func reportKey(runID, collection string) string {
	return fmt.Sprintf("tsa:report:%s:%s", runID, collectionKey(collection))
}

// SaveCollection stores every condition result and the error report of res
func (s *Store) SaveCollection(ctx context.Context, res *analysis.CollectionResult) error {
	for _, c := range res.Conditions {
		if err := s.set(ctx, resultKey(res.RunID, res.Title, c.Key()), c); err != nil {
			return fmt.Errorf("failed to save result of %s: %w", c.Key(), err)
		}
	}
	if err := s.set(ctx, reportKey(res.RunID, res.Title), res.Report); err != nil {
		return fmt.Errorf("failed to save report of %q: %w", res.Title, err)
	}

	s.logger.Debugf("Saved %d results of collection %q (run %s)", len(res.Conditions), res.Title, res.RunID)
	return nil
}

func (s *Store) set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

// GetCondition returns a stored condition result, or nil if there is none
func (s *Store) GetCondition(ctx context.Context, runID, collection string, key block.Ref) (*analysis.ConditionResult, error) {
	var res analysis.ConditionResult
	found, err := s.get(ctx, resultKey(runID, collection, key), &res)
	if err != nil || !found {
		return nil, err
	}
	return &res, nil
}

// GetReport returns a stored error report, or nil if there is none
func (s *Store) GetReport(ctx context.Context, runID, collection string) (*evalerr.CollectionReport, error) {
	var rep evalerr.CollectionReport
	found, err := s.get(ctx, reportKey(runID, collection), &rep)
	if err != nil || !found {
		return nil, err
	}
	return &rep, nil
}

func (s *Store) get(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

// ListConditions returns the keys of the conditions stored for a collection
// of a run, sorted
func (s *Store) ListConditions(ctx context.Context, runID, collection string) ([]string, error) {
	prefix := fmt.Sprintf("tsa:result:%s:%s:", runID, collectionKey(collection))
	keys, err := s.redis.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	sort.Strings(out)
	return out, nil
}

// DeleteRun removes everything stored for a run
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	var keys []string
	for _, pattern := range []string{"tsa:result:" + runID + ":*", "tsa:report:" + runID + ":*"} {
		found, err := s.redis.Keys(ctx, pattern).Result()
		if err != nil {
			return fmt.Errorf("failed to list keys of run %s: %w", runID, err)
		}
		keys = append(keys, found...)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.redis.Del(ctx, keys...).Err()
}
