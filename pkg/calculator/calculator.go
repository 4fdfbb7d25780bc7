// Package calculator holds the input state machine of a pocket calculator.
//
// A State is an immutable value. Reduce folds one Event into a State and
// returns the next one; View projects a State onto what the display shows.
package calculator

import (
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/turbekoff/calcbot/pkg/arith"
)

// MaxInputDigits caps how many digits may be typed into one operand.
const MaxInputDigits = 15

const errorText = "Error"

type State struct {
	first    *apd.Decimal
	second   *apd.Decimal
	op       arith.Operator
	display  string
	newInput bool
	hasPoint bool
	failed   bool
}

// UiState is what a front-end renders.
type UiState struct {
	DisplayValue string `json:"display_value"`
	IsError      bool   `json:"is_error"`
}

// New returns a cleared calculator showing "0". The zero State behaves the
// same way.
func New() State {
	return State{
		first:    new(apd.Decimal),
		second:   new(apd.Decimal),
		display:  "0",
		newInput: true,
	}
}

func (s State) Display() string {
	if s.isZero() {
		return "0"
	}
	return s.display
}

func (s State) Pending() arith.Operator { return s.op }
func (s State) IsNewInput() bool { return s.newInput || s.isZero() }
func (s State) HasDecimalPoint() bool { return s.hasPoint }
func (s State) IsError() bool { return s.failed }

func (s State) FirstOperand() *apd.Decimal {
	return operand(s.first)
}

func (s State) SecondOperand() *apd.Decimal {
	return operand(s.second)
}

func operand(d *apd.Decimal) *apd.Decimal {
	if d == nil {
		return new(apd.Decimal)
	}
	return new(apd.Decimal).Set(d)
}

func (s State) isZero() bool {
	return s.display == ""
}

// Reduce returns the state that follows s after ev. After a division by
// zero only Clear, Digit and Decimal do anything useful: Digit and Decimal
// start over from a cleared state, Equals is ignored and every other event
// just clears the error.
func Reduce(s State, ev Event) State {
	if s.isZero() {
		s = New()
	}

	if s.failed {
		switch ev.Kind {
		case KindEquals:
			return s
		case KindDigit, KindDecimal:
			s = New()
		default:
			return New()
		}
	}

	switch ev.Kind {
	case KindDigit:
		return s.digit(ev.Digit)
	case KindOperator:
		return s.operator(ev.Operator)
	case KindEquals:
		return s.equals()
	case KindClear:
		return New()
	case KindDelete:
		return s.delete()
	case KindDecimal:
		return s.decimal()
	case KindPercent:
		return s.percent()
	case KindNegate:
		return s.negate()
	default:
		return s
	}
}

// ReduceAll folds events into s from left to right.
func ReduceAll(s State, events ...Event) State {
	for _, ev := range events {
		s = Reduce(s, ev)
	}
	return s
}

func (s State) digit(d int) State {
	if d < 0 || d > 9 {
		return s
	}
	key := string(rune('0' + d))

	switch {
	case s.newInput, s.display == "0":
		s.display = key
	case countDigits(s.display) >= MaxInputDigits:
	default:
		s.display += key
	}

	s.newInput = false
	s.hasPoint = strings.Contains(s.display, ".")
	return s
}

func (s State) operator(op arith.Operator) State {
	if s.op != arith.None && !s.newInput {
		s = s.equals()
		if s.failed {
			return s
		}
	}

	s.first = arith.ParseOrZero(s.display)
	s.op = op
	s.newInput = true
	return s
}

func (s State) equals() State {
	if s.op == arith.None {
		return s
	}

	s.second = arith.ParseOrZero(s.display)
	result, err := arith.Calculate(s.first, s.second, s.op)
	if err != nil {
		s.failed = true
		return s
	}

	next := New()
	next.first = result
	next.display = arith.Format(result)
	return next
}

func (s State) delete() State {
	switch {
	case len(s.display) <= 1:
		s.display = "0"
	case len(s.display) == 2 && s.display[0] == '-':
		s.display = "0"
	default:
		s.display = s.display[:len(s.display)-1]
	}

	s.hasPoint = strings.Contains(s.display, ".")
	return s
}

func (s State) decimal() State {
	if strings.Contains(s.display, ".") {
		return s
	}

	if s.newInput {
		s.display = "0."
	} else {
		s.display += "."
	}

	s.newInput = false
	s.hasPoint = true
	return s
}

func (s State) percent() State {
	base := new(apd.Decimal)
	if s.op != arith.None {
		base = s.first
	}

	result, err := arith.Percentage(base, arith.ParseOrZero(s.display), s.op)
	if err != nil {
		s.failed = true
		return s
	}

	s.display = arith.Format(result)
	s.newInput = false
	s.hasPoint = strings.Contains(s.display, ".")
	return s
}

func (s State) negate() State {
	switch {
	case s.display == "0":
	case strings.HasPrefix(s.display, "-"):
		s.display = s.display[1:]
	default:
		s.display = "-" + s.display
	}

	s.newInput = false
	return s
}

// View projects s onto the display. While an operator is pending the
// display shows the whole expression typed so far.
func (s State) View() UiState {
	if s.failed {
		return UiState{DisplayValue: errorText, IsError: true}
	}

	if s.isZero() {
		return New().View()
	}

	if s.op == arith.None {
		return UiState{DisplayValue: s.display}
	}

	head := arith.Format(s.first) + " " + s.op.Symbol()
	if s.newInput {
		return UiState{DisplayValue: head}
	}
	return UiState{DisplayValue: head + " " + s.display}
}

func countDigits(text string) int {
	n := 0
	for i := 0; i < len(text); i++ {
		if '0' <= text[i] && text[i] <= '9' {
			n++
		}
	}
	return n
}
