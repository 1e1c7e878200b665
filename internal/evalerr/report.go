package evalerr

import (
	"errors"
	"sync"
	"time"
)

// Record is one error entry in a report. Repeated identical errors are
// folded into a single record with a count.
type Record struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Count   int       `json:"count"`
	At      time.Time `json:"at"`
}

// Log collects records for one unit (collection, condition or block).
// It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

// NewLog creates an empty log
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Add records err. Errors without a kind are recorded as data errors.
func (l *Log) Add(err error) {
	if err == nil {
		return
	}
	kind := KindOf(err)
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) {
		msg = e.Msg
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
	}
	l.add(kind, msg)
}

// Addf records a formatted message of the given kind
func (l *Log) Addf(kind Kind, format string, args ...any) {
	l.Add(New(kind, format, args...))
}

func (l *Log) add(kind Kind, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		if l.records[i].Kind == kind && l.records[i].Message == msg {
			l.records[i].Count++
			return
		}
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	l.records = append(l.records, Record{Kind: kind, Message: msg, Count: 1, At: now()})
}

// Records returns a copy of the collected records in insertion order
func (l *Log) Records() []Record {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) == 0 {
		return nil
	}
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of distinct records
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// BlockReport holds the errors of one block
type BlockReport struct {
	Alias  string   `json:"alias"`
	Raw    string   `json:"raw"`
	Errors []Record `json:"errors,omitempty"`
}

// ConditionReport holds the errors of one condition and its blocks
type ConditionReport struct {
	Site        string        `json:"site"`
	MasterAlias string        `json:"master_alias"`
	Errors      []Record      `json:"errors,omitempty"`
	Blocks      []BlockReport `json:"blocks,omitempty"`
}

// Count returns the number of records in the condition and its blocks
func (r ConditionReport) Count() int {
	n := len(r.Errors)
	for _, b := range r.Blocks {
		n += len(b.Errors)
	}
	return n
}

// CollectionReport is the error tree of one collection
type CollectionReport struct {
	Title      string            `json:"title"`
	Errors     []Record          `json:"errors,omitempty"`
	Conditions []ConditionReport `json:"conditions,omitempty"`
}

// Count returns the total number of records in the tree
func (r CollectionReport) Count() int {
	n := len(r.Errors)
	for _, c := range r.Conditions {
		n += c.Count()
	}
	return n
}

// Merge concatenates logs into one record list, folding duplicates
func Merge(logs ...*Log) []Record {
	var out []Record
	for _, l := range logs {
	next:
		for _, rec := range l.Records() {
			for i := range out {
				if out[i].Kind == rec.Kind && out[i].Message == rec.Message {
					out[i].Count += rec.Count
					continue next
				}
			}
			out = append(out, rec)
		}
	}
	return out
}
