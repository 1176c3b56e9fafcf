package posting

import (
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// TaxCalculation splits an amount into supply, tax and total.
type TaxCalculation struct {
	SupplyAmount decimal.Decimal
	TaxRate      decimal.Decimal
	TaxAmount    decimal.Decimal
	TotalAmount  decimal.Decimal
}

// Calculate applies rate (a percentage) to a tax-exclusive supply amount.
// The tax is rounded half-up to the currency's minor unit.
func (e *Engine) Calculate(supply, rate decimal.Decimal) (TaxCalculation, error) {
	if err := e.checkTaxInputs(supply, rate); err != nil {
		return TaxCalculation{}, err
	}
	tax := e.currency.Round(supply.Mul(rate).Div(hundred))
	return TaxCalculation{SupplyAmount: supply, TaxRate: rate, TaxAmount: tax, TotalAmount: supply.Add(tax)}, nil
}

// CalculateInclusive extracts the tax contained in a tax-inclusive gross amount.
// Supply is gross minus the rounded tax, so supply + tax == gross exactly.
func (e *Engine) CalculateInclusive(gross, rate decimal.Decimal) (TaxCalculation, error) {
	if err := e.checkTaxInputs(gross, rate); err != nil {
		return TaxCalculation{}, err
	}
	tax := e.currency.Round(gross.Mul(rate).Div(hundred.Add(rate)))
	return TaxCalculation{SupplyAmount: gross.Sub(tax), TaxRate: rate, TaxAmount: tax, TotalAmount: gross}, nil
}

// ComputeFor applies a configured tax to amount, honoring its calculation method.
// Exempt taxes yield a zero tax amount.
func (e *Engine) ComputeFor(tax ledger.Tax, amount decimal.Decimal) (TaxCalculation, error) {
	rate := tax.Rate
	if tax.Exempt {
		rate = decimal.Zero
	}
	if tax.Method == ledger.CalcInclusive {
		return e.CalculateInclusive(amount, rate)
	}
	return e.Calculate(amount, rate)
}

func (e *Engine) checkTaxInputs(amount, rate decimal.Decimal) error {
	if amount.IsNegative() {
		return &InvalidAmountError{Amount: amount, Reason: "must not be negative"}
	}
	if !e.currency.Fits(amount) {
		return &InvalidAmountError{Amount: amount, Reason: "exceeds " + e.currency.Code + " precision"}
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return &InvalidRateError{Rate: rate}
	}
	return nil
}
