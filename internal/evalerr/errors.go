// Package evalerr classifies analysis errors and collects them into
// reports keyed by collection, condition and block.
package evalerr

import (
	"errors"
	"fmt"
)

// Kind categorizes an analysis error
type Kind string

const (
	// KindInput covers unknown stations or sensors, malformed operators or
	// thresholds, bad identifiers and duplicate condition keys
	KindInput Kind = "input"
	// KindParse is a malformed boolean expression
	KindParse Kind = "parse"
	// KindResolution is a reference to a missing, failed or cyclic condition
	KindResolution Kind = "resolution"
	// KindData is an observation store failure for a single block
	KindData Kind = "data"
	// KindFatal aborts a whole collection
	KindFatal Kind = "fatal"
)

// Error is an analysis error with a kind
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around err
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindData
// for errors that carry no kind
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindData
}
