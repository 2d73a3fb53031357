package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is a USD amount in whole cents. Ledger arithmetic stays in integers;
// decimal strings appear only at config and API edges.
type Cents int64

// ParseUSD converts a decimal dollar string ("0.20", "25") to cents.
func ParseUSD(s string) (Cents, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid usd amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("usd amount must not be negative: %s", s)
	}
	c := d.Mul(decimal.NewFromInt(100))
	if !c.IsInteger() {
		return 0, fmt.Errorf("usd amount %q has sub-cent precision", s)
	}
	return Cents(c.IntPart()), nil
}

// USD returns the amount as a float dollar value for JSON responses and
// metrics gauges.
func (c Cents) USD() float64 {
	return decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(100)).InexactFloat64()
}

func (c Cents) String() string {
	return "$" + decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(100)).StringFixed(2)
}
