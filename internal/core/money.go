// Package core provides money parsing and handling utilities.
//
// This file contains the Amount type used for capitals and expense amounts,
// plus the coercion rules applied to amounts arriving from requests.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a decimal money value serialized as a plain JSON number.
type Amount struct {
	decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{}

// NewAmount builds an Amount from a decimal.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// AmountFromFloat builds an Amount from a float64. Intended for tests and literals.
func AmountFromFloat(f float64) Amount {
	return Amount{Decimal: decimal.NewFromFloat(f)}
}

// MustAmount parses s and panics on failure.
func MustAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return Amount{Decimal: d}
}

// Plus returns a + b.
func (a Amount) Plus(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Add(b.Decimal)}
}

// Minus returns a - b.
func (a Amount) Minus(b Amount) Amount {
	return Amount{Decimal: a.Decimal.Sub(b.Decimal)}
}

// FloorZero returns a, or zero when a is negative.
func (a Amount) FloorZero() Amount {
	if a.Decimal.IsNegative() {
		return Zero
	}
	return a
}

// Float returns the amount as float64 for spreadsheet cells.
// Note: use Amount arithmetic for totals, never the float.
func (a Amount) Float() float64 {
	return a.Decimal.InexactFloat64()
}

// Fixed formats the amount with two decimals and thousands separators, e.g. "1,234.50".
func (a Amount) Fixed() string {
	s := a.Decimal.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// UnmarshalJSON is lenient: null, empty or non-numeric values decode to zero
// so one bad record never breaks the sums of a whole month.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = d
	return nil
}

// ParseAmount coerces a decoded JSON value (number, json.Number or numeric
// string) into an Amount. Both dot and comma decimal separators are accepted.
func ParseAmount(v any) (Amount, error) {
	switch val := v.(type) {
	case nil:
		return Zero, ErrMissingAmount
	case Amount:
		return val, nil
	case float64:
		return Amount{Decimal: decimal.NewFromFloat(val)}, nil
	case int:
		return Amount{Decimal: decimal.NewFromInt(int64(val))}, nil
	case int64:
		return Amount{Decimal: decimal.NewFromInt(val)}, nil
	case json.Number:
		return parseAmountString(val.String())
	case string:
		return parseAmountString(val)
	default:
		return Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}

func parseAmountString(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrMissingAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{Decimal: d}, nil
}

// CoerceCapital applies the capital rule: non-numeric values become zero and
// negative values are clamped to zero.
func CoerceCapital(v any) Amount {
	a, err := ParseAmount(v)
	if err != nil {
		return Zero
	}
	return a.FloorZero()
}
