package interval

import (
	"fmt"
	"sort"
	"time"
)

// Op is a binary boolean operator applied by Combine
type Op uint8

const (
	OpAnd Op = iota + 1
	OpOr
)

func (o Op) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

func (o Op) apply(a, b Truth) Truth {
	switch o {
	case OpAnd:
		return And(a, b)
	case OpOr:
		return Or(a, b)
	}
	panic(fmt.Sprintf("interval: invalid operator %d", o))
}

// Not negates every interval of s. Uncovered time stays uncovered.
func Not(s Sequence) Sequence {
	var out Sequence
	for _, iv := range s {
		iv.Truth = iv.Truth.Not()
		out = out.push(iv)
	}
	return out
}

// Combine merges the operands on the union of their boundaries and applies op
// to every resulting segment. An operand that does not cover a segment counts
// as Unknown there, unless no operand covers it, in which case the segment is
// left out of the result.
func Combine(op Op, operands ...Sequence) (Sequence, error) {
	switch op {
	case OpAnd, OpOr:
	default:
		return nil, fmt.Errorf("combine: invalid operator %d", op)
	}
	if len(operands) == 0 {
		return nil, ErrNoOperands
	}
	if len(operands) == 1 {
		return operands[0].Clone(), nil
	}

	bounds := boundaries(operands)
	cursors := make([]int, len(operands))

	var out Sequence
	for b := 0; b+1 < len(bounds); b++ {
		from, until := bounds[b], bounds[b+1]

		var (
			result  Truth
			covered bool
		)
		for i, seq := range operands {
			truth := Unknown
			if t, ok := truthAt(seq, &cursors[i], from); ok {
				truth = t
				covered = true
			}
			if i == 0 {
				result = truth
				continue
			}
			result = op.apply(result, truth)
		}

		if !covered {
			continue
		}
		out = out.push(Interval{Start: from, End: until, Truth: result})
	}

	return out, nil
}

// truthAt reports the truth of seq at instant t. The cursor only moves
// forward, so callers must query ascending instants.
func truthAt(seq Sequence, cursor *int, t time.Time) (Truth, bool) {
	for *cursor < len(seq) && !seq[*cursor].End.After(t) {
		*cursor++
	}
	if *cursor >= len(seq) {
		return Unknown, false
	}
	iv := seq[*cursor]
	if iv.Start.After(t) {
		return Unknown, false
	}
	return iv.Truth, true
}

// boundaries collects every start and end instant, sorted and deduplicated
func boundaries(operands []Sequence) []time.Time {
	var all []time.Time
	for _, seq := range operands {
		for _, iv := range seq {
			all = append(all, iv.Start, iv.End)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })

	out := all[:0]
	for _, t := range all {
		if len(out) > 0 && out[len(out)-1].Equal(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}
