// Package arith implements the decimal arithmetic behind the calculator:
// the four operators, percentages, display formatting and input parsing.
//
// Every function is pure. Returned decimals are freshly allocated and the
// arguments are never modified, so callers may share values freely.
package arith

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

const (
	// MaxDisplayDigits is the longest plain string Format prints before
	// switching to engineering notation.
	MaxDisplayDigits = 15

	// DivisionScale is the number of fractional digits a quotient keeps.
	DivisionScale = 10

	significantDigits = MaxDisplayDigits - 5
	decimal128Digits  = 34
	quotientGuard     = 2
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrNotFinite      = errors.New("value is not finite")
)

// ParseError reports text that does not denote a finite decimal.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("can't parse %q as decimal: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

const traps = apd.SystemOverflow |
	apd.SystemUnderflow |
	apd.Overflow |
	apd.DivisionUndefined |
	apd.DivisionByZero |
	apd.DivisionImpossible |
	apd.InvalidOperation

// decimal128 mirrors the IEEE 754 decimal128 precision with the wider
// exponent range of the base context.
var decimal128 = &apd.Context{
	Precision:   decimal128Digits,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Traps:       traps,
	Rounding:    apd.RoundHalfEven,
}

var hundred = apd.New(100, 0)

// Calculate applies op to first and second. Add, Subtract and Multiply are
// rounded to 34 significant digits; Divide is rounded half-up to
// DivisionScale fractional digits. With no operator the first operand is
// returned unchanged.
func Calculate(first, second *apd.Decimal, op Operator) (*apd.Decimal, error) {
	result := new(apd.Decimal)

	var err error
	switch op {
	case Add:
		_, err = decimal128.Add(result, first, second)
	case Subtract:
		_, err = decimal128.Sub(result, first, second)
	case Multiply:
		_, err = decimal128.Mul(result, first, second)
	case Divide:
		return divide(first, second)
	default:
		return result.Set(first), nil
	}

	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", first, op, second, ErrOverflow)
	}
	return result, nil
}

// divide truncates the quotient a couple of digits past DivisionScale and
// then rounds half-up, which equals rounding the exact quotient.
func divide(first, second *apd.Decimal) (*apd.Decimal, error) {
	if second.IsZero() {
		return nil, ErrDivisionByZero
	}

	result := new(apd.Decimal)
	if first.IsZero() {
		return result, nil
	}

	intDigits := adjusted(first) - adjusted(second) + 1
	if intDigits < 0 {
		intDigits = 0
	}
	precision := uint32(intDigits + DivisionScale + quotientGuard)

	truncate := apd.BaseContext.WithPrecision(precision)
	truncate.Traps = traps
	truncate.Rounding = apd.RoundDown
	if _, err := truncate.Quo(result, first, second); err != nil {
		return nil, fmt.Errorf("%s / %s: %w", first, second, ErrOverflow)
	}

	round := apd.BaseContext.WithPrecision(precision)
	round.Traps = traps
	round.Rounding = apd.RoundHalfUp
	if _, err := round.Quantize(result, result, -DivisionScale); err != nil {
		return nil, fmt.Errorf("%s / %s: %w", first, second, ErrOverflow)
	}
	return result, nil
}

// adjusted returns the exponent of the most significant digit of d.
func adjusted(d *apd.Decimal) int64 {
	return int64(d.Exponent) + d.NumDigits() - 1
}

// Percentage turns percent into a fraction. For Add and Subtract the
// fraction is taken of base, so that 100 + 10% reads as 100 + 10. For any
// other operator, or none, the bare fraction is returned.
func Percentage(base, percent *apd.Decimal, op Operator) (*apd.Decimal, error) {
	fraction := new(apd.Decimal)
	if _, err := decimal128.Quo(fraction, percent, hundred); err != nil {
		return nil, fmt.Errorf("%s%%: %w", percent, ErrOverflow)
	}

	switch op {
	case Add, Subtract:
		result := new(apd.Decimal)
		if _, err := decimal128.Mul(result, base, fraction); err != nil {
			return nil, fmt.Errorf("%s%% of %s: %w", percent, base, ErrOverflow)
		}
		return result, nil
	default:
		return fraction, nil
	}
}

// Format renders value for the display. Trailing fractional zeros are
// dropped; values whose plain form is longer than MaxDisplayDigits are
// rounded to 10 significant digits, and shown in engineering notation only
// when the rounded value is still too long.
func Format(value *apd.Decimal) string {
	if value == nil || value.IsZero() {
		return "0"
	}

	var d apd.Decimal
	d.Reduce(value)

	plain := d.Text('f')
	if len(plain) <= MaxDisplayDigits {
		return plain
	}

	ctx := apd.BaseContext.WithPrecision(significantDigits)
	ctx.Rounding = apd.RoundHalfUp
	if _, err := ctx.Round(&d, &d); err != nil {
		return plain
	}
	d.Reduce(&d)
	if rounded := d.Text('f'); len(rounded) <= MaxDisplayDigits {
		return rounded
	}
	return engineering(&d)
}

// engineering prints d with an exponent that is a multiple of three. Like
// most calculators it stays in plain notation when d has no positive
// exponent and is not smaller than 1e-6.
func engineering(d *apd.Decimal) string {
	digits := d.Coeff.String()
	exp := int(d.Exponent)
	adj := exp + len(digits) - 1
	if exp <= 0 && adj >= -6 {
		return d.Text('f')
	}

	shift := adj % 3
	if shift < 0 {
		shift += 3
	}
	eng := adj - shift
	intDigits := shift + 1
	if len(digits) < intDigits {
		digits += strings.Repeat("0", intDigits-len(digits))
	}

	var b strings.Builder
	if d.Negative {
		b.WriteByte('-')
	}
	b.WriteString(digits[:intDigits])
	if len(digits) > intDigits {
		b.WriteByte('.')
		b.WriteString(digits[intDigits:])
	}
	if eng != 0 {
		b.WriteByte('E')
		if eng > 0 {
			b.WriteByte('+')
		}
		b.WriteString(strconv.Itoa(eng))
	}
	return b.String()
}

// Parse reads a display string. The empty string and a lone minus sign
// denote zero.
func Parse(text string) (*apd.Decimal, error) {
	if text == "" || text == "-" {
		return new(apd.Decimal), nil
	}

	d, _, err := apd.NewFromString(text)
	if err != nil {
		return nil, &ParseError{Text: text, Err: err}
	}
	if d.Form != apd.Finite {
		return nil, &ParseError{Text: text, Err: ErrNotFinite}
	}
	return d, nil
}

// ParseOrZero is Parse with every failure replaced by zero.
func ParseOrZero(text string) *apd.Decimal {
	d, err := Parse(text)
	if err != nil {
		return new(apd.Decimal)
	}
	return d
}
