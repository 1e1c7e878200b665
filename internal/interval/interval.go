package interval

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnordered  = errors.New("samples are not in strictly ascending time order")
	ErrInvalidGap = errors.New("maximum gap must be positive")
	ErrNoOperands = errors.New("no operands to combine")
)

// Interval is a closed-open time range [Start, End) with a constant truth value
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Truth Truth     `json:"truth"`
}

// Duration returns the length of the interval
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s): %s",
		iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339), iv.Truth)
}

// Sequence is an ordered list of non-overlapping intervals in which no two
// touching intervals share the same truth value. Time not covered by any
// interval lies outside the observed window.
type Sequence []Interval

// push appends iv, extending the last interval when it touches iv with the same truth
func (s Sequence) push(iv Interval) Sequence {
	if !iv.Start.Before(iv.End) {
		return s
	}
	if n := len(s); n > 0 && s[n-1].End.Equal(iv.Start) && s[n-1].Truth == iv.Truth {
		s[n-1].End = iv.End
		return s
	}
	return append(s, iv)
}

// Validate checks ordering, non-overlap and maximal merging
func (s Sequence) Validate() error {
	for i, iv := range s {
		if !iv.Start.Before(iv.End) {
			return fmt.Errorf("interval %d is empty or inverted: %s", i, iv)
		}
		if i == 0 {
			continue
		}
		prev := s[i-1]
		if iv.Start.Before(prev.End) {
			return fmt.Errorf("interval %d overlaps its predecessor: %s after %s", i, iv, prev)
		}
		if iv.Start.Equal(prev.End) && iv.Truth == prev.Truth {
			return fmt.Errorf("interval %d is not merged with its predecessor: %s after %s", i, iv, prev)
		}
	}
	return nil
}

// Clip bounds the sequence to [from, until)
func (s Sequence) Clip(from, until time.Time) Sequence {
	var out Sequence
	for _, iv := range s {
		if !iv.End.After(from) || !iv.Start.Before(until) {
			continue
		}
		if iv.Start.Before(from) {
			iv.Start = from
		}
		if iv.End.After(until) {
			iv.End = until
		}
		out = out.push(iv)
	}
	return out
}

// Span returns the first covered instant and the end of the last interval
func (s Sequence) Span() (from, until time.Time, ok bool) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s[0].Start, s[len(s)-1].End, true
}

// Clone returns a copy that shares no backing array with s
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}
