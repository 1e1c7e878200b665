// Package condition parses boolean expressions over blocks and evaluates them
// into a master interval sequence.
package condition

import (
	"errors"
	"strings"
	"time"

	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/interval"
)

// ErrInvalid is returned when evaluating a condition that carries errors
var ErrInvalid = errors.New("condition is invalid")

// Condition is a named boolean expression over blocks, unique by its key
// within a collection
type Condition struct {
	Key    block.Ref
	Raw    string
	Blocks []block.Block
	Tree   *Node

	// Errors holds condition level errors; block errors are kept per block
	Errors    *evalerr.Log
	blockErrs []*evalerr.Log
}

// New parses raw into a condition keyed by site and alias. Only invalid key
// identifiers make New fail; expression and block errors are recorded on the
// returned condition, which is then not Valid.
func New(site, alias, raw string, maxGap time.Duration) (*Condition, error) {
	s, err := block.NormalizeIdentifier(site)
	if err != nil {
		return nil, err
	}
	a, err := block.NormalizeIdentifier(alias)
	if err != nil {
		return nil, err
	}

	c := &Condition{
		Key:    block.Ref{Site: s, Alias: a},
		Raw:    strings.TrimSpace(raw),
		Errors: evalerr.NewLog(),
	}

	tokens, err := tokenize(c.Raw)
	if err != nil {
		c.Errors.Add(err)
		return c, nil
	}

	index := make(map[string]int)
	for _, t := range tokens {
		if t.kind != tokBlock {
			continue
		}
		key := blockKey(t.text)
		if _, ok := index[key]; ok {
			continue
		}
		b, err := block.Parse(c.Key, len(c.Blocks)+1, t.text, maxGap)
		log := evalerr.NewLog()
		log.Add(err)
		index[key] = len(c.Blocks)
		c.Blocks = append(c.Blocks, b)
		c.blockErrs = append(c.blockErrs, log)
	}

	tree, err := parse(tokens, func(text string) int { return index[blockKey(text)] })
	if err != nil {
		c.Errors.Add(err)
		return c, nil
	}
	c.Tree = tree
	return c, nil
}

// blockKey identifies block texts that parse to the same block
func blockKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Valid reports whether the condition and all its blocks are free of errors
func (c *Condition) Valid() bool {
	if c.Tree == nil || c.Errors.Len() > 0 {
		return false
	}
	for _, l := range c.blockErrs {
		if l.Len() > 0 {
			return false
		}
	}
	return true
}

// Primary reports whether every block compares sensor data
func (c *Condition) Primary() bool {
	if len(c.Blocks) == 0 {
		return false
	}
	for _, b := range c.Blocks {
		if b.Secondary {
			return false
		}
	}
	return true
}

// Secondary reports whether at least one block refers to another condition
func (c *Condition) Secondary() bool {
	for _, b := range c.Blocks {
		if b.Secondary {
			return true
		}
	}
	return false
}

// Dependencies returns the distinct conditions referenced by secondary
// blocks, in order of first appearance
func (c *Condition) Dependencies() []block.Ref {
	var deps []block.Ref
	seen := make(map[block.Ref]bool)
	for _, b := range c.Blocks {
		if !b.Secondary || seen[b.Source] {
			continue
		}
		seen[b.Source] = true
		deps = append(deps, b.Source)
	}
	return deps
}

// BlockErrors returns the error log of block i
func (c *Condition) BlockErrors(i int) *evalerr.Log {
	return c.blockErrs[i]
}

// Bind resolves the sensor id of every primary block. Resolve failures are
// recorded on the failing block.
func (c *Condition) Bind(resolve func(block.Block) (int, error)) {
	for i, b := range c.Blocks {
		if b.Secondary || c.blockErrs[i].Len() > 0 {
			continue
		}
		id, err := resolve(b)
		if err != nil {
			c.blockErrs[i].Add(err)
			continue
		}
		c.Blocks[i] = b.WithSensorID(id)
	}
}

// AliasExpr renders the expression with block aliases in place of block text
func (c *Condition) AliasExpr() string {
	if c.Tree == nil {
		return ""
	}
	names := make([]string, len(c.Blocks))
	for i, b := range c.Blocks {
		names[i] = b.Alias
	}
	return c.Tree.Format(names)
}

// Evaluate combines the block sequences, given in block order, into the
// master sequence of the condition
func (c *Condition) Evaluate(blocks []interval.Sequence) (interval.Sequence, error) {
	if !c.Valid() {
		return nil, ErrInvalid
	}
	if len(blocks) != len(c.Blocks) {
		return nil, evalerr.New(evalerr.KindFatal, "got %d block sequences for %d blocks", len(blocks), len(c.Blocks))
	}
	return c.Tree.Eval(blocks)
}

// Report returns the error records of the condition and its blocks, merged
// with the given pass logs. blockLogs is indexed like Blocks and may be nil.
func (c *Condition) Report(conditionLog *evalerr.Log, blockLogs []*evalerr.Log) evalerr.ConditionReport {
	rep := evalerr.ConditionReport{
		Site:        c.Key.Site,
		MasterAlias: c.Key.Alias,
		Errors:      evalerr.Merge(c.Errors, conditionLog),
	}
	for i, b := range c.Blocks {
		var extra *evalerr.Log
		if i < len(blockLogs) {
			extra = blockLogs[i]
		}
		rep.Blocks = append(rep.Blocks, evalerr.BlockReport{
			Alias:  b.Alias,
			Raw:    b.Raw,
			Errors: evalerr.Merge(c.blockErrs[i], extra),
		})
	}
	return rep
}
