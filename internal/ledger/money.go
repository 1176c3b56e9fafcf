package ledger

import (
	"fmt"
	"math"
	"strings"

	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/errs"
)

// BalanceTolerance is the largest debit/credit difference still reported as balanced
// (exclusive bound).
var BalanceTolerance = decimal.New(1, -2)

// Currency is the single ledger currency. Scale is the number of minor-unit digits
// and doubles as the rounding precision of every computed amount.
type Currency struct {
	Code  string
	Scale int32
}

// ParseCurrency resolves an ISO-4217 code to its minor-unit scale.
func ParseCurrency(code string) (Currency, error) {
	c, err := money.ParseCurr(strings.TrimSpace(code))
	if err != nil {
		return Currency{}, fmt.Errorf("currency %q: %w", code, err)
	}
	return Currency{Code: c.Code(), Scale: int32(c.Scale())}, nil
}

// MustParseCurrency is ParseCurrency for constants and tests.
func MustParseCurrency(code string) Currency {
	c, err := ParseCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Round rounds d half-up (away from zero) to the currency's minor unit.
func (c Currency) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.Scale)
}

// Fits reports whether d has no digits beyond the currency's minor unit.
func (c Currency) Fits(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(c.Scale))
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// MinorUnits converts d to an integer count of minor units. It fails when d has
// digits beyond the minor unit or the count does not fit an int64.
func (c Currency) MinorUnits(d decimal.Decimal) (int64, error) {
	units := d.Shift(c.Scale)
	if !units.IsInteger() {
		return 0, fmt.Errorf("%w: %s exceeds %s precision", errs.ErrUnprocessable, d, c.Code)
	}
	if units.LessThan(minInt64) || units.GreaterThan(maxInt64) {
		return 0, fmt.Errorf("%w: %s %s is out of range", errs.ErrUnprocessable, d, c.Code)
	}
	return units.IntPart(), nil
}

// FromMinorUnits converts an integer count of minor units back to a decimal amount.
func (c Currency) FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -c.Scale)
}

// Format renders d with exactly Scale fractional digits.
func (c Currency) Format(d decimal.Decimal) string {
	return d.StringFixed(c.Scale)
}
