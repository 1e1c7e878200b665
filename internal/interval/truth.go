package interval

import (
	"fmt"
)

// Truth is a three-valued logic value
type Truth uint8

const (
	Unknown Truth = iota
	False
	True
)

// FromBool converts a known boolean into a Truth
func FromBool(b bool) Truth {
	if b {
		return True
	}
	return False
}

// Not negates t; Unknown stays Unknown
func (t Truth) Not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	case Unknown:
		return Unknown
	}
	panic(fmt.Sprintf("interval: invalid truth value %d", t))
}

// And is the Kleene conjunction: False dominates, then Unknown
func And(a, b Truth) Truth {
	switch {
	case a == False || b == False:
		return False
	case a == Unknown || b == Unknown:
		return Unknown
	default:
		return True
	}
}

// Or is the Kleene disjunction: True dominates, then Unknown
func Or(a, b Truth) Truth {
	switch {
	case a == True || b == True:
		return True
	case a == Unknown || b == Unknown:
		return Unknown
	default:
		return False
	}
}

func (t Truth) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	case Unknown:
		return "unknown"
	}
	return fmt.Sprintf("truth(%d)", uint8(t))
}

// MarshalText implements encoding.TextMarshaler
func (t Truth) MarshalText() ([]byte, error) {
	switch t {
	case True, False, Unknown:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("invalid truth value %d", t)
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Truth) UnmarshalText(b []byte) error {
	switch string(b) {
	case "true":
		*t = True
	case "false":
		*t = False
	case "unknown":
		*t = Unknown
	default:
		return fmt.Errorf("invalid truth value %q", string(b))
	}
	return nil
}
