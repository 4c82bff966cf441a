package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned when a monetary value is divided by zero.
var ErrDivisionByZero = errors.New("money: division by zero")

// ErrCurrencyMismatch is returned when two values with different currency codes are combined.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// DefaultPrecision is the number of decimal digits kept when no policy overrides it.
const DefaultPrecision int32 = 2

// Policy fixes the currency code and decimal precision for every value a cart produces.
type Policy struct {
	Currency  string
	Precision int32
}

// DefaultPolicy returns the policy used when a caller supplies none:
// USD at two decimal digits.
func DefaultPolicy() Policy {
	return Policy{Currency: "USD", Precision: DefaultPrecision}
}

// Normalize fills in defaults for zero-valued fields. A precision of zero is
// kept as-is so whole-unit currencies remain expressible.
func (p Policy) Normalize() Policy {
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.Precision < 0 {
		p.Precision = DefaultPrecision
	}
	return p
}

// Money is an immutable monetary value held at a fixed decimal precision.
// Every operation returns a new value rounded half-up at that precision.
type Money struct {
	amount    decimal.Decimal
	currency  string
	precision int32
}

// New constructs a Money from a decimal amount, rounding to the policy precision.
func New(amount decimal.Decimal, p Policy) Money {
	p = p.Normalize()
	return Money{amount: amount.Round(p.Precision), currency: p.Currency, precision: p.Precision}
}

// Zero returns the zero value for the policy's currency.
func Zero(p Policy) Money {
	return New(decimal.Zero, p)
}

// FromString parses a decimal string such as "19.99".
func FromString(value string, p Policy) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", value, err)
	}
	return New(d, p), nil
}

// FromMinorUnits constructs a Money from an integer count of minor units
// (e.g. cents). The conversion is exact for every representable value.
func FromMinorUnits(units int64, p Policy) Money {
	p = p.Normalize()
	return Money{
		amount:    decimal.New(units, -p.Precision),
		currency:  p.Currency,
		precision: p.Precision,
	}
}

// MinorUnits returns the amount as an integer count of minor units.
// FromMinorUnits(x, p).MinorUnits() == x for all x.
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(m.precision).IntPart()
}

// Decimal exposes the underlying decimal amount.
func (m Money) Decimal() decimal.Decimal { return m.amount }

// Currency returns the ISO 4217 currency code.
func (m Money) Currency() string { return m.currency }

// Precision returns the number of decimal digits the value is held at.
func (m Money) Precision() int32 { return m.precision }

func (m Money) policy() Policy {
	return Policy{Currency: m.currency, Precision: m.precision}
}

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return New(m.amount.Add(other.amount), m.policy()), nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return New(m.amount.Sub(other.amount), m.policy()), nil
}

// Mul scales the amount by a decimal factor, rounding the product.
func (m Money) Mul(factor decimal.Decimal) Money {
	return New(m.amount.Mul(factor), m.policy())
}

// MulInt scales the amount by an integer, e.g. a line quantity.
func (m Money) MulInt(n int64) Money {
	return New(m.amount.Mul(decimal.NewFromInt(n)), m.policy())
}

// Div divides the amount by a decimal divisor.
func (m Money) Div(divisor decimal.Decimal) (Money, error) {
	if divisor.IsZero() {
		return Money{}, ErrDivisionByZero
	}
	return New(m.amount.Div(divisor), m.policy()), nil
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// Equal reports whether two values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Cmp compares amounts: -1 if m < other, 0 if equal, +1 if m > other.
func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

// Format renders the amount with its currency code, e.g. "19.99 USD".
func (m Money) Format() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.precision), m.currency)
}

// String implements fmt.Stringer.
func (m Money) String() string { return m.Format() }

// MarshalJSON encodes the value as {"amount":"19.99","currency":"USD"}.
// The amount keeps exactly the policy precision so decoding recovers it.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"amount":%q,"currency":%q}`, m.amount.StringFixed(m.precision), m.currency)), nil
}

// UnmarshalJSON decodes a value written by MarshalJSON. The precision is
// recovered from the number of decimal digits in the amount.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("money: decode: %w", err)
	}
	d, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("money: decode amount %q: %w", raw.Amount, err)
	}
	precision := -d.Exponent()
	if precision < 0 {
		precision = 0
	}
	*m = Money{amount: d, currency: raw.Currency, precision: precision}
	return nil
}
