package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/condition"
	"github.com/smukkama/tsa/internal/evalerr"
)

// ErrDuplicateCondition is recorded when a site and master alias pair is
// added twice to a collection
var ErrDuplicateCondition = errors.New("duplicate condition")

// Catalog resolves station and sensor identifiers
type Catalog interface {
	StationIDs(ctx context.Context) (map[int]bool, error)
	SensorIDs(ctx context.Context) (map[string]int, error)
}

// Collection is a set of conditions analysed over one time range
type Collection struct {
	Title  string
	From   time.Time
	Until  time.Time
	MaxGap time.Duration

	// Errors holds collection level errors
	Errors *evalerr.Log

	conditions []*condition.Condition
	index      map[block.Ref]int
	validated  bool
}

// NewCollection creates a collection over whole days: from its first day at
// 00:00 until the end of the day of until. A non-positive maxGap selects
// block.DefaultMaxGap.
func NewCollection(title string, from, until time.Time, maxGap time.Duration) (*Collection, error) {
	start := startOfDay(from)
	end := startOfDay(until)
	if end.Before(start) {
		return nil, evalerr.New(evalerr.KindInput, "collection %q ends %s before it starts %s",
			title, until.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	if maxGap <= 0 {
		maxGap = block.DefaultMaxGap
	}

	return &Collection{
		Title:  title,
		From:   start,
		Until:  end.AddDate(0, 0, 1),
		MaxGap: maxGap,
		Errors: evalerr.NewLog(),
		index:  make(map[block.Ref]int),
	}, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AddCondition parses and adds a condition. A condition with an invalid or
// duplicate key is skipped and the error recorded on the collection; an
// unparsable condition is kept and carries its own errors.
func (c *Collection) AddCondition(site, alias, raw string) (*condition.Condition, error) {
	cond, err := condition.New(site, alias, raw, c.MaxGap)
	if err != nil {
		err = evalerr.Wrap(evalerr.KindInput, err, "condition %s#%s skipped", site, alias)
		c.Errors.Add(err)
		return nil, err
	}

	if _, dup := c.index[cond.Key]; dup {
		err := evalerr.Wrap(evalerr.KindInput, ErrDuplicateCondition, "%s skipped", cond.Key)
		c.Errors.Add(err)
		return nil, err
	}

	c.index[cond.Key] = len(c.conditions)
	c.conditions = append(c.conditions, cond)
	c.validated = false
	return cond, nil
}

// Conditions returns the conditions in insertion order
func (c *Collection) Conditions() []*condition.Condition {
	return c.conditions
}

// Condition returns the condition with the given key
func (c *Collection) Condition(key block.Ref) (*condition.Condition, bool) {
	i, ok := c.index[key]
	if !ok {
		return nil, false
	}
	return c.conditions[i], true
}

// Validate checks the stations and sensors of all primary blocks against the
// catalog and binds their sensor ids. Unknown ids are recorded on the
// blocks; only a failing catalog is returned as an error.
func (c *Collection) Validate(ctx context.Context, catalog Catalog) error {
	stations, err := catalog.StationIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stations: %w", err)
	}
	sensors, err := catalog.SensorIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sensors: %w", err)
	}

	for _, cond := range c.conditions {
		cond.Bind(func(b block.Block) (int, error) {
			if !stations[b.StationID] {
				return 0, evalerr.New(evalerr.KindInput, "station %q (id %d) not found", b.Station, b.StationID)
			}
			id, ok := sensors[b.Sensor]
			if !ok {
				return 0, evalerr.New(evalerr.KindInput, "sensor %q not found", b.Sensor)
			}
			return id, nil
		})
	}
	c.validated = true
	return nil
}

// Validated reports whether Validate ran since the last added condition
func (c *Collection) Validated() bool {
	return c.validated
}

// Report returns the error tree of the collection as built, without the
// errors of any evaluation pass
func (c *Collection) Report() evalerr.CollectionReport {
	rep := evalerr.CollectionReport{Title: c.Title, Errors: c.Errors.Records()}
	for _, cond := range c.conditions {
		rep.Conditions = append(rep.Conditions, cond.Report(nil, nil))
	}
	return rep
}
