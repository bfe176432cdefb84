// Package core holds the ledger domain: records, money, scopes, reports
// and the error taxonomy shared by every other package.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in integer cents. Signed: income positive,
// expense negative. All arithmetic stays in cents; decimals only
// appear at the parsing and formatting edges.
type Money struct {
	Cents int64
}

// ParseAmount converts a user-supplied decimal string into a positive
// Money. It accepts both dot (12.34) and comma (12,34) separators and
// rounds half-up past the second decimal. Zero, negative and malformed
// amounts fail with ErrValidation.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty amount", ErrValidation)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: invalid amount %q", ErrValidation, s)
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() {
		return Money{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !cents.BigInt().IsInt64() {
		return Money{}, fmt.Errorf("%w: amount out of range", ErrValidation)
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount as an exact decimal for display.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }

func (m Money) Abs() Money {
	if m.Cents == math.MinInt64 {
		return m
	}
	if m.Cents < 0 {
		return m.Neg()
	}
	return m
}

// Signed applies the sign convention of a movement kind to an
// unsigned magnitude.
func (m Money) Signed(k MovementKind) Money {
	return Money{Cents: m.Abs().Cents * k.Sign()}
}
