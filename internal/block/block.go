// Package block parses the single comparisons and condition references that
// a condition expression is built from.
package block

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/interval"
)

// DefaultMaxGap is how long a sample stays valid when no newer sample follows
const DefaultMaxGap = 30 * time.Minute

// Ref identifies a condition inside a collection
type Ref struct {
	Site  string `json:"site"`
	Alias string `json:"alias"`
}

func (r Ref) String() string {
	return r.Site + "#" + r.Alias
}

// Block is one operand of a condition expression. A primary block compares
// one station sensor against a threshold; a secondary block refers to the
// result of another condition.
type Block struct {
	Alias     string
	Order     int
	Raw       string
	Parent    Ref
	Secondary bool

	// secondary only
	Source Ref

	// primary only
	Station   string
	StationID int
	Sensor    string
	SensorID  int
	Op        Operator
	Threshold Threshold
	MaxGap    time.Duration
}

// Parse builds the block numbered order of the condition parent from raw.
// The text is one of
//
//	station#sensor OP value
//	site#alias
//	alias
//
// where OP is surrounded by spaces. On error the returned block still carries
// its alias, order and raw text so the error can be reported against it.
func Parse(parent Ref, order int, raw string, maxGap time.Duration) (Block, error) {
	text := strings.Join(strings.Fields(raw), " ")
	b := Block{
		Alias:  fmt.Sprintf("%s_%d", parent.Alias, order),
		Order:  order,
		Raw:    text,
		Parent: parent,
		MaxGap: maxGap,
	}
	if b.MaxGap <= 0 {
		b.MaxGap = DefaultMaxGap
	}
	if text == "" {
		return b, evalerr.New(evalerr.KindInput, "empty block")
	}

	hashes := strings.Count(text, "#")
	if hashes > 1 {
		return b, evalerr.New(evalerr.KindInput, "too many \"#\" in %q, only one or zero allowed", text)
	}

	lower := strings.ToLower(text)
	var (
		op    Operator
		opSep string
		nOps  int
	)
	for _, candidate := range operators {
		sep := " " + string(candidate) + " "
		if n := strings.Count(lower, sep); n > 0 {
			nOps += n
			op, opSep = candidate, sep
		}
	}
	if nOps > 1 {
		return b, evalerr.New(evalerr.KindInput, "too many comparison operators in %q, only one or zero allowed", text)
	}

	switch {
	case hashes == 0 && nOps == 0:
		alias, err := NormalizeIdentifier(text)
		if err != nil {
			return b, err
		}
		b.Secondary = true
		b.Source = Ref{Site: parent.Site, Alias: alias}
		return b, nil

	case hashes == 1 && nOps == 0:
		parts := strings.SplitN(text, "#", 2)
		site, err := NormalizeIdentifier(parts[0])
		if err != nil {
			return b, err
		}
		alias, err := NormalizeIdentifier(parts[1])
		if err != nil {
			return b, err
		}
		b.Secondary = true
		b.Source = Ref{Site: site, Alias: alias}
		return b, nil

	case hashes == 1 && nOps == 1:
		return parsePrimary(b, lower, op, opSep)
	}

	return b, evalerr.New(evalerr.KindInput, "no \"#\" in %q, expected [station]#[sensor] [operator] [value]", text)
}

func parsePrimary(b Block, lower string, op Operator, opSep string) (Block, error) {
	lhs, rhs, _ := strings.Cut(lower, opSep)
	stationPart, sensorPart, _ := strings.Cut(lhs, "#")

	station, err := NormalizeIdentifier(stationPart)
	if err != nil {
		return b, err
	}
	id, err := stationID(station)
	if err != nil {
		return b, err
	}
	sensor, err := NormalizeIdentifier(sensorPart)
	if err != nil {
		return b, err
	}
	threshold, err := parseThreshold(op, strings.TrimSpace(rhs))
	if err != nil {
		return b, err
	}

	b.Station = station
	b.StationID = id
	b.Sensor = sensor
	b.Op = op
	b.Threshold = threshold
	return b, nil
}

// stationID is the number formed by the digits of a station identifier
func stationID(station string) (int, error) {
	var digits strings.Builder
	for _, c := range station {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0, evalerr.New(evalerr.KindInput, "station %q has no numeric id", station)
	}
	id, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, evalerr.Wrap(evalerr.KindInput, err, "station %q", station)
	}
	return id, nil
}

func parseThreshold(op Operator, s string) (Threshold, error) {
	if op != OpIn {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Threshold{}, evalerr.New(evalerr.KindInput, "threshold %q is not a number", s)
		}
		return Threshold{Value: v}, nil
	}

	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return Threshold{}, evalerr.New(evalerr.KindInput, "operator \"in\" must be followed by a tuple enclosed in parentheses, got %q", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return Threshold{}, evalerr.New(evalerr.KindInput, "empty tuple after \"in\"")
	}

	var set []float64
	for _, item := range strings.Split(inner, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(item), 64)
		if err != nil {
			return Threshold{}, evalerr.New(evalerr.KindInput, "tuple value %q is not a number", strings.TrimSpace(item))
		}
		set = append(set, v)
	}
	return Threshold{Set: set}, nil
}

// Predicate returns the comparison of a primary block as a packer predicate
func (b Block) Predicate() interval.Predicate {
	op, threshold := b.Op, b.Threshold
	return func(v float64) bool {
		return op.Compare(v, threshold)
	}
}

// WithSensorID returns a copy of b bound to the given sensor id
func (b Block) WithSensorID(id int) Block {
	b.SensorID = id
	return b
}

func (b Block) String() string {
	if b.Secondary {
		return fmt.Sprintf("%s -> %s", b.Alias, b.Source)
	}
	return fmt.Sprintf("%s: %s#%s %s %s", b.Alias, b.Station, b.Sensor, b.Op, b.thresholdString())
}

func (b Block) thresholdString() string {
	if b.Op != OpIn {
		return strconv.FormatFloat(b.Threshold.Value, 'g', -1, 64)
	}
	parts := make([]string, len(b.Threshold.Set))
	for i, v := range b.Threshold.Set {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
