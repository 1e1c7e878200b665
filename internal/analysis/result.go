package analysis

import (
	"fmt"
	"sync"
	"time"

	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/interval"
)

// BlockResult is the packed sequence of one block
type BlockResult struct {
	Alias     string            `json:"alias"`
	Raw       string            `json:"raw"`
	Secondary bool              `json:"secondary"`
	Source    string            `json:"source,omitempty"`
	StationID int               `json:"station_id,omitempty"`
	SensorID  int               `json:"sensor_id,omitempty"`
	Sequence  interval.Sequence `json:"sequence"`
}

// ConditionResult is the outcome of one condition in a pass
type ConditionResult struct {
	Site        string            `json:"site"`
	MasterAlias string            `json:"master_alias"`
	Raw         string            `json:"raw"`
	AliasExpr   string            `json:"alias_expr,omitempty"`
	Primary     bool              `json:"primary"`
	Valid       bool              `json:"valid"`
	Master      interval.Sequence `json:"master,omitempty"`
	Blocks      []BlockResult     `json:"blocks,omitempty"`
	Summary     interval.Summary  `json:"summary"`
	DataFrom    *time.Time        `json:"data_from,omitempty"`
	DataUntil   *time.Time        `json:"data_until,omitempty"`
}

// Key returns the condition key
func (r ConditionResult) Key() block.Ref {
	return block.Ref{Site: r.Site, Alias: r.MasterAlias}
}

// CollectionResult is the outcome of one collection in a pass
type CollectionResult struct {
	RunID      string                   `json:"run_id"`
	Title      string                   `json:"title"`
	From       time.Time                `json:"from"`
	Until      time.Time                `json:"until"`
	StartedAt  time.Time                `json:"started_at"`
	Duration   time.Duration            `json:"duration"`
	Conditions []ConditionResult        `json:"conditions"`
	Report     evalerr.CollectionReport `json:"report"`
}

// Valid returns the number of conditions that were evaluated without errors
func (r *CollectionResult) Valid() int {
	n := 0
	for _, c := range r.Conditions {
		if c.Valid {
			n++
		}
	}
	return n
}

type published struct {
	master interval.Sequence
	blocks []interval.Sequence
}

// resultSet holds the master sequences of one pass. Each key is written once
// and never changed after.
type resultSet struct {
	mu sync.RWMutex
	m  map[block.Ref]published
}

func newResultSet() *resultSet {
	return &resultSet{m: make(map[block.Ref]published)}
}

func (s *resultSet) publish(key block.Ref, p published) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[key]; ok {
		return fmt.Errorf("result of %s already published", key)
	}
	s.m[key] = p
	return nil
}

func (s *resultSet) get(key block.Ref) (published, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.m[key]
	return p, ok
}
