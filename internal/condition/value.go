package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/masyukai/cart/internal/money"
)

// ErrInvalidValue indicates a value expression that does not match the grammar.
var ErrInvalidValue = errors.New("condition: invalid value expression")

// Kind discriminates the parsed forms of a value expression.
type Kind int

const (
	// KindFlat adds a signed flat amount to the base.
	KindFlat Kind = iota
	// KindPercent adds a signed fraction of the running base.
	KindPercent
	// KindMultiply scales the base by a factor.
	KindMultiply
	// KindDivide divides the base by a factor.
	KindDivide
)

// Value is a condition's price adjustment, parsed once at construction.
//
// The grammar is an optional leading operator (+ - * /) followed by a number,
// or a number suffixed with % for percentage-of-base. A bare number means
// addition. "-10%" parses to a percent adjustment of -0.10.
type Value struct {
	raw    string
	kind   Kind
	amount decimal.Decimal
}

// ParseValue parses a compact value expression such as "-10%", "+5", "125",
// "*1.5" or "/2".
func ParseValue(raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}, fmt.Errorf("%w: empty", ErrInvalidValue)
	}

	if strings.Contains(s, "%") {
		num := strings.Replace(s, "%", "", 1)
		d, err := decimal.NewFromString(strings.TrimSpace(num))
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
		}
		return Value{raw: s, kind: KindPercent, amount: d.Div(decimal.NewFromInt(100))}, nil
	}

	kind := KindFlat
	num := s
	negate := false
	switch s[0] {
	case '+':
		num = s[1:]
	case '-':
		num = s[1:]
		negate = true
	case '*':
		kind = KindMultiply
		num = s[1:]
	case '/':
		kind = KindDivide
		num = s[1:]
	}
	d, err := decimal.NewFromString(strings.TrimSpace(num))
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	if negate {
		d = d.Neg()
	}
	if kind == KindDivide && d.IsZero() {
		return Value{}, fmt.Errorf("%w: %q divides by zero", ErrInvalidValue, raw)
	}
	return Value{raw: s, kind: kind, amount: d}, nil
}

// MustParseValue is ParseValue that panics on error. For tests and fixtures.
func MustParseValue(raw string) Value {
	v, err := ParseValue(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Raw returns the original expression text.
func (v Value) Raw() string { return v.raw }

// Kind returns the parsed adjustment form.
func (v Value) Kind() Kind { return v.kind }

// Amount returns the parsed number: the signed flat amount, the signed
// percent fraction, or the multiply/divide factor.
func (v Value) Amount() decimal.Decimal { return v.amount }

// Apply adjusts base by this value and returns the new amount,
// rounded at the base's precision.
func (v Value) Apply(base money.Money) (money.Money, error) {
	switch v.kind {
	case KindPercent:
		return base.Add(base.Mul(v.amount))
	case KindFlat:
		return base.Add(money.New(v.amount, money.Policy{Currency: base.Currency(), Precision: base.Precision()}))
	case KindMultiply:
		return base.Mul(v.amount), nil
	case KindDivide:
		return base.Div(v.amount)
	default:
		return money.Money{}, fmt.Errorf("%w: unknown kind %d", ErrInvalidValue, v.kind)
	}
}

// IsDiscount reports whether the adjustment lowers the base: a negative flat
// amount or a negative percentage. Derived from the parsed value, never stored.
func (v Value) IsDiscount() bool {
	switch v.kind {
	case KindFlat, KindPercent:
		return v.amount.IsNegative()
	default:
		return false
	}
}

// IsCharge reports whether the adjustment is a non-zero non-discount.
func (v Value) IsCharge() bool {
	return !v.IsDiscount() && !v.amount.IsZero()
}

// MarshalJSON encodes the original expression text.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", v.raw)), nil
}

// UnmarshalJSON re-parses a stored expression.
func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidValue, data)
	}
	parsed, err := ParseValue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
