package calculator

import (
	"errors"
	"fmt"

	"github.com/turbekoff/calcbot/pkg/arith"
)

var ErrUnsupportedKey = errors.New("unsupported key")

type Kind int

const (
	KindDigit Kind = iota + 1
	KindOperator
	KindEquals
	KindClear
	KindDelete
	KindDecimal
	KindPercent
	KindNegate
)

// Event is a single key press. Digit and Operator carry a payload, the
// other kinds are plain values.
type Event struct {
	Kind     Kind
	Digit    int
	Operator arith.Operator
}

var (
	Equals  = Event{Kind: KindEquals}
	Clear   = Event{Kind: KindClear}
	Delete  = Event{Kind: KindDelete}
	Decimal = Event{Kind: KindDecimal}
	Percent = Event{Kind: KindPercent}
	Negate  = Event{Kind: KindNegate}
)

func Digit(d int) Event {
	return Event{Kind: KindDigit, Digit: d}
}

func Operator(op arith.Operator) Event {
	return Event{Kind: KindOperator, Operator: op}
}

func (e Event) String() string {
	switch e.Kind {
	case KindDigit:
		return fmt.Sprintf("digit(%d)", e.Digit)
	case KindOperator:
		return fmt.Sprintf("operator(%s)", e.Operator)
	case KindEquals:
		return "equals"
	case KindClear:
		return "clear"
	case KindDelete:
		return "delete"
	case KindDecimal:
		return "decimal"
	case KindPercent:
		return "percent"
	case KindNegate:
		return "negate"
	default:
		return fmt.Sprintf("Event(%d)", int(e.Kind))
	}
}

var keyEvents = map[string]Event{
	"=":  Equals,
	"AC": Clear,
	"C":  Delete,
	".":  Decimal,
	"%":  Percent,
	"T":  Negate,
}

// ParseKey maps a keypad key to its event. Besides the operator keys
// accepted by arith.ParseOperator the keypad knows the digits, "=", ".",
// "%", "T" (negate), "C" (delete) and "AC" (clear).
func ParseKey(key string) (Event, error) {
	if len(key) == 1 && '0' <= key[0] && key[0] <= '9' {
		return Digit(int(key[0] - '0')), nil
	}

	if ev, ok := keyEvents[key]; ok {
		return ev, nil
	}

	if op, err := arith.ParseOperator(key); err == nil {
		return Operator(op), nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnsupportedKey, key)
}

// ParseKeys maps every key in order and stops at the first unsupported one.
func ParseKeys(keys []string) ([]Event, error) {
	events := make([]Event, 0, len(keys))
	for _, key := range keys {
		ev, err := ParseKey(key)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
