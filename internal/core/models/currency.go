package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency describes how an ISO 4217 code maps between major and minor units.
type Currency struct {
	Code     string `json:"code" db:"code"` // ISO 4217, e.g. "USD"
	Name     string `json:"name" db:"name"`
	Exponent int32  `json:"exponent" db:"exponent"` // digits after the decimal point: 2 for USD, 0 for JPY
}

// ToMinorUnits converts a decimal string such as "12.50" or "12,5" to minor
// units. Amounts with more precision than the currency allows are rejected
// instead of rounded.
func (c Currency) ToMinorUnits(amount string) (int64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(amount), ",", ".")
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return c.DecimalToMinorUnits(d)
}

func (c Currency) DecimalToMinorUnits(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(c.Exponent)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places for %s", d.String(), c.Exponent, c.Code)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return scaled.IntPart(), nil
}

func (c Currency) FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -c.Exponent)
}

// Format renders minor units with exactly Exponent decimal places.
func (c Currency) Format(minor int64) string {
	return c.FromMinorUnits(minor).StringFixed(c.Exponent)
}
