// Package analysis runs the evaluation pass of a collection: it schedules
// the conditions, fetches and packs block data, combines blocks into master
// sequences and collects results and errors.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/condition"
	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/interval"
	"github.com/smukkama/tsa/internal/logger"
	"github.com/smukkama/tsa/internal/observation"
	"github.com/smukkama/tsa/internal/scheduler"
)

// Config tunes a Runner
type Config struct {
	// Workers bounds the conditions evaluated concurrently
	Workers int
	// FetchTimeout bounds the data fetch of one block, retries included
	FetchTimeout time.Duration
	// CacheSize is the number of series kept by the per-pass fetch cache
	CacheSize int
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		FetchTimeout: 2 * time.Minute,
		CacheSize:    256,
	}
}

// Runner evaluates collections against an observation store
type Runner struct {
	store   observation.Fetcher
	catalog Catalog
	cfg     Config
	logger  *zap.SugaredLogger
}

// NewRunner creates a new runner. catalog may be nil when collections are
// validated by the caller.
func NewRunner(store observation.Fetcher, catalog Catalog, cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	return &Runner{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.For(logger.ComponentAnalysis),
	}
}

// Run evaluates one collection. Errors scoped to blocks and conditions are
// recorded in the result's report. A non-nil error means the pass was aborted:
// on cancellation no result is returned, on a fatal store or catalog failure
// the result holds the fatal record and no master sequences.
func (r *Runner) Run(ctx context.Context, c *Collection) (*CollectionResult, error) {
	return r.run(ctx, uuid.NewString(), c)
}

// RunBatch evaluates collections one after another under one run id. A
// collection that fails never stops its siblings; only cancellation ends the
// batch early.
func (r *Runner) RunBatch(ctx context.Context, collections []*Collection) ([]*CollectionResult, error) {
	runID := uuid.NewString()
	results := make([]*CollectionResult, 0, len(collections))

	for _, c := range collections {
		res, err := r.run(ctx, runID, c)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			r.logger.Errorf("Collection %q failed: %v", c.Title, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) run(ctx context.Context, runID string, c *Collection) (*CollectionResult, error) {
	started := time.Now()
	r.logger.Infof("Evaluating collection %q (%d conditions, %s - %s, run %s)",
		c.Title, len(c.conditions), c.From.Format(time.DateOnly), c.Until.Format(time.DateOnly), runID)

	res, err := r.evaluate(ctx, runID, c)
	elapsed := time.Since(started)

	switch {
	case err != nil && ctx.Err() != nil:
		collectionDuration.WithLabelValues("cancelled").Observe(elapsed.Seconds())
		return nil, ctx.Err()
	case err != nil:
		collectionDuration.WithLabelValues("fatal").Observe(elapsed.Seconds())
		res = r.fatalResult(runID, c, err)
	default:
		collectionDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	}

	res.StartedAt = started
	res.Duration = elapsed
	r.logger.Infof("Collection %q done in %v: %d/%d conditions valid, %d errors",
		c.Title, elapsed.Round(time.Millisecond), res.Valid(), len(res.Conditions), res.Report.Count())
	return res, err
}

func (r *Runner) fatalResult(runID string, c *Collection, err error) *CollectionResult {
	log := evalerr.NewLog()
	log.Add(evalerr.Wrap(evalerr.KindFatal, err, "collection not evaluated"))

	rep := c.Report()
	rep.Errors = evalerr.Merge(c.Errors, log)

	res := &CollectionResult{
		RunID:  runID,
		Title:  c.Title,
		From:   c.From,
		Until:  c.Until,
		Report: rep,
	}
	for _, cond := range c.conditions {
		res.Conditions = append(res.Conditions, conditionResult(cond, published{}, false, c))
	}
	return res
}

func (r *Runner) evaluate(ctx context.Context, runID string, c *Collection) (*CollectionResult, error) {
	if !c.Validated() && r.catalog != nil {
		if err := c.Validate(ctx, r.catalog); err != nil {
			return nil, err
		}
	}

	cache, err := observation.NewCache(r.store, r.cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	p := newPass(c, cache, r.cfg.FetchTimeout)

	nodes := make([]scheduler.Node, 0, len(c.conditions))
	for _, cond := range c.conditions {
		nodes = append(nodes, scheduler.Node{
			Key:    cond.Key,
			Deps:   cond.Dependencies(),
			Failed: !cond.Valid(),
		})
	}
	plan := scheduler.Build(nodes)
	for key, reason := range plan.Blocked {
		p.condLogs[key].Add(reason.Err())
	}

	for i, layer := range plan.Layers {
		r.logger.Debugf("Collection %q layer %d: %d conditions", c.Title, i, len(layer))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Workers)
		for _, key := range layer {
			cond, _ := c.Condition(key)
			g.Go(func() error {
				return p.evaluate(gctx, cond)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return p.result(runID, plan), nil
}

// pass is the state of one collection evaluation. The log maps are filled
// before any worker starts and only read afterwards.
type pass struct {
	c            *Collection
	fetcher      observation.Fetcher
	fetchTimeout time.Duration
	results      *resultSet
	condLogs     map[block.Ref]*evalerr.Log
	blockLogs    map[block.Ref][]*evalerr.Log
}

func newPass(c *Collection, fetcher observation.Fetcher, fetchTimeout time.Duration) *pass {
	p := &pass{
		c:            c,
		fetcher:      fetcher,
		fetchTimeout: fetchTimeout,
		results:      newResultSet(),
		condLogs:     make(map[block.Ref]*evalerr.Log, len(c.conditions)),
		blockLogs:    make(map[block.Ref][]*evalerr.Log, len(c.conditions)),
	}
	for _, cond := range c.conditions {
		p.condLogs[cond.Key] = evalerr.NewLog()
		logs := make([]*evalerr.Log, len(cond.Blocks))
		for i := range logs {
			logs[i] = evalerr.NewLog()
		}
		p.blockLogs[cond.Key] = logs
	}
	return p
}

// evaluate computes and publishes the master sequence of cond. Only fatal
// errors and cancellation are returned; everything else is recorded.
func (p *pass) evaluate(ctx context.Context, cond *condition.Condition) error {
	blockLogs := p.blockLogs[cond.Key]
	seqs := make([]interval.Sequence, len(cond.Blocks))
	failed := false

	for i, b := range cond.Blocks {
		if b.Secondary {
			src, ok := p.results.get(b.Source)
			if !ok {
				blockLogs[i].Addf(evalerr.KindResolution, "referenced condition %s has no result", b.Source)
				failed = true
				continue
			}
			seqs[i] = src.master
			continue
		}

		seq, err := p.fetchBlock(ctx, b)
		if err != nil {
			if errors.Is(err, observation.ErrUnavailable) {
				return evalerr.Wrap(evalerr.KindFatal, err, "block %s", b.Alias)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			blockLogs[i].Add(err)
			failed = true
			continue
		}
		seqs[i] = seq
	}

	if failed {
		conditionsEvaluated.WithLabelValues(statusFailed).Inc()
		return nil
	}

	master, err := cond.Evaluate(seqs)
	if err != nil {
		p.condLogs[cond.Key].Add(err)
		conditionsEvaluated.WithLabelValues(statusFailed).Inc()
		return nil
	}

	if err := p.results.publish(cond.Key, published{master: master, blocks: seqs}); err != nil {
		return evalerr.Wrap(evalerr.KindFatal, err, "condition %s", cond.Key)
	}
	conditionsEvaluated.WithLabelValues(statusOK).Inc()
	return nil
}

// fetchBlock loads, checks and packs the samples of a primary block
func (p *pass) fetchBlock(ctx context.Context, b block.Block) (interval.Sequence, error) {
	fetchCtx := ctx
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	samples, err := p.fetcher.Fetch(fetchCtx, b.StationID, b.SensorID, p.c.From, p.c.Until)
	if err != nil {
		if errors.Is(err, observation.ErrUnavailable) {
			return nil, err
		}
		return nil, evalerr.Wrap(evalerr.KindData, err, "fetch %s#%s", b.Station, b.Sensor)
	}
	if err := observation.ValidateSeries(samples, p.c.From, p.c.Until); err != nil {
		return nil, evalerr.Wrap(evalerr.KindInput, err, "invalid series %s#%s", b.Station, b.Sensor)
	}

	seq, err := interval.Pack(samples, b.Predicate(), b.MaxGap)
	if err != nil {
		return nil, evalerr.Wrap(evalerr.KindInput, err, "pack %s#%s", b.Station, b.Sensor)
	}
	return seq.Clip(p.c.From, p.c.Until), nil
}

func (p *pass) result(runID string, plan scheduler.Plan) *CollectionResult {
	res := &CollectionResult{
		RunID:  runID,
		Title:  p.c.Title,
		From:   p.c.From,
		Until:  p.c.Until,
		Report: evalerr.CollectionReport{Title: p.c.Title, Errors: p.c.Errors.Records()},
	}

	for _, cond := range p.c.conditions {
		pub, ok := p.results.get(cond.Key)
		res.Conditions = append(res.Conditions, conditionResult(cond, pub, ok, p.c))
		res.Report.Conditions = append(res.Report.Conditions,
			cond.Report(p.condLogs[cond.Key], p.blockLogs[cond.Key]))

		switch {
		case !cond.Valid():
			conditionsEvaluated.WithLabelValues(statusInvalid).Inc()
		case plan.Blocked[cond.Key].Kind != "":
			conditionsEvaluated.WithLabelValues(statusBlocked).Inc()
		}
	}
	return res
}

func conditionResult(cond *condition.Condition, pub published, ok bool, c *Collection) ConditionResult {
	res := ConditionResult{
		Site:        cond.Key.Site,
		MasterAlias: cond.Key.Alias,
		Raw:         cond.Raw,
		AliasExpr:   cond.AliasExpr(),
		Primary:     cond.Primary(),
		Valid:       ok,
	}

	for i, b := range cond.Blocks {
		br := BlockResult{
			Alias:     b.Alias,
			Raw:       b.Raw,
			Secondary: b.Secondary,
			StationID: b.StationID,
			SensorID:  b.SensorID,
		}
		if b.Secondary {
			br.Source = b.Source.String()
		}
		if ok {
			br.Sequence = pub.blocks[i]
		}
		res.Blocks = append(res.Blocks, br)
	}

	if !ok {
		return res
	}
	res.Master = pub.master
	res.Summary = pub.master.Summarize(c.From, c.Until)
	if from, until, covered := pub.master.Span(); covered {
		res.DataFrom, res.DataUntil = &from, &until
	}
	return res
}
