// Package types provides common type aliases and utilities.
package types

import (
	"strings"

	"github.com/shopspring/decimal"

	"tpvcore/internal/core/apperror"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is a signed decimal quantity (units or weight).
// Negative quantities only appear on rectificativa lines.
type Quantity = decimal.Decimal

// Rounding points used across the ledger.
const (
	// ScaleTotal is used for every persisted total and row gross.
	ScaleTotal int32 = 2
	// ScaleUnit is used for unit gross prices.
	ScaleUnit int32 = 4
	// ScalePrecise is used for audit-only net values.
	ScalePrecise int32 = 8
)

var hundred = decimal.NewFromInt(100)

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// ParseMoney parses a decimal request field. Empty and non-numeric input is a
// validation error naming field.
func ParseMoney(field, s string) (Money, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, apperror.NewValidation("value is required").WithDetail("field", field)
	}
	d, err := NewMoneyFromString(s)
	if err != nil {
		return decimal.Zero, apperror.NewValidation("invalid decimal value").
			WithDetail("field", field).
			WithDetail("value", s)
	}
	return d, nil
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Round2 rounds half away from zero to two decimals.
func Round2(m Money) Money { return m.Round(ScaleTotal) }

// Round4 rounds half away from zero to four decimals.
func Round4(m Money) Money { return m.Round(ScaleUnit) }

// Round8 rounds half away from zero to eight decimals.
func Round8(m Money) Money { return m.Round(ScalePrecise) }

// Format2 renders m with exactly two decimals ("20.00").
func Format2(m Money) string { return m.StringFixed(ScaleTotal) }

// Format4 renders m with exactly four decimals ("10.0000").
func Format4(m Money) string { return m.StringFixed(ScaleUnit) }

// Format8 renders m with exactly eight decimals.
func Format8(m Money) string { return m.StringFixed(ScalePrecise) }

// FormatQuantity renders a quantity without trailing zeros ("2", "0.375", "-1").
func FormatQuantity(q Quantity) string { return q.String() }

// PercentOf returns base × pct / 100 without rounding.
func PercentOf(base, pct Money) Money {
	return base.Mul(pct).Div(hundred)
}

// GrossToNet back-computes the net part of a tax-inclusive amount at eight decimals.
func GrossToNet(gross, ratePct Money) Money {
	divisor := decimal.NewFromInt(1).Add(ratePct.Div(hundred))
	return gross.DivRound(divisor, ScalePrecise)
}

// ClampZero returns zero for negative m.
func ClampZero(m Money) Money {
	if m.IsNegative() {
		return decimal.Zero
	}
	return m
}
