package block

import (
	"fmt"
	"strings"
)

// Operator is a comparison between a sensor value and a threshold
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "<>"
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
)

// operators in the order they are searched for in block text; each must be
// surrounded by spaces
var operators = []Operator{OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpIn}

// ParseOperator returns the Operator spelled by s
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range operators {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Threshold is the right-hand side of a comparison. Set is used by OpIn only.
type Threshold struct {
	Value float64   `json:"value,omitempty"`
	Set   []float64 `json:"set,omitempty"`
}

// Compare reports whether value satisfies the comparison against t
func (o Operator) Compare(value float64, t Threshold) bool {
	switch o {
	case OpEqual:
		return value == t.Value
	case OpNotEqual:
		return value != t.Value
	case OpGreater:
		return value > t.Value
	case OpLess:
		return value < t.Value
	case OpGreaterEqual:
		return value >= t.Value
	case OpLessEqual:
		return value <= t.Value
	case OpIn:
		for _, v := range t.Set {
			if value == v {
				return true
			}
		}
		return false
	}
	panic(fmt.Sprintf("block: invalid operator %q", string(o)))
}
