package arith

import (
	"errors"
	"fmt"
)

var ErrUnknownOperator = errors.New("unknown operator")

// Operator is one of the four calculator operations. The zero value means
// no operator is pending.
type Operator int

const (
	None Operator = iota
	Add
	Subtract
	Multiply
	Divide
)

var symbols = map[Operator]string{
	Add:      "+",
	Subtract: "−",
	Multiply: "×",
	Divide:   "÷",
}

var keys = map[string]Operator{
	"+": Add,
	"-": Subtract,
	"*": Multiply,
	"/": Divide,
	"−": Subtract,
	"×": Multiply,
	"÷": Divide,
}

// Symbol returns the glyph shown on the display.
func (op Operator) Symbol() string {
	return symbols[op]
}

func (op Operator) String() string {
	switch op {
	case None:
		return "none"
	case Add:
		return "add"
	case Subtract:
		return "subtract"
	case Multiply:
		return "multiply"
	case Divide:
		return "divide"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// ParseOperator accepts both the ASCII keys and the display glyphs.
func ParseOperator(key string) (Operator, error) {
	if op, ok := keys[key]; ok {
		return op, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownOperator, key)
}
