package posting

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// LineSource yields posted, tax-tagged journal lines dated within [from, to].
type LineSource interface {
	TaxedLines(ctx context.Context, from, to time.Time, taxIDs []uuid.UUID) ([]ledger.TaxedLine, error)
}

// Aggregation is the result of aggregating one period.
type Aggregation struct {
	Period Period
	Totals ledger.TaxReportTotals
}

// Aggregate sums tax-tagged lines of the period by side of trade.
//
// Each line contributes its net amount |credit - debit| as the tax-exclusive base of
// the tagged tax. The tax is the amount booked on the line when it carries one, so
// the report agrees with the tax accounts for inclusive taxes; otherwise it is
// recomputed from the base. Sale-side tax lands in SaleVATAmount, purchase-side tax in
// PurchaseVATAmount. A "both" tax is classified by the line: credit-heavy lines are
// sales. Withholding taxes, exempt and zero-rated bases are reported separately and
// do not affect VAT payable. A non-nil adj replaces VATPayable; the derived value is
// kept alongside.
func (e *Engine) Aggregate(ctx context.Context, d PeriodDescriptor, taxes []ledger.Tax, src LineSource, adj *ledger.ManualAdjustment) (Aggregation, error) {
	period, err := ResolvePeriod(d)
	if err != nil {
		return Aggregation{}, err
	}
	if adj != nil {
		if strings.TrimSpace(adj.Reason) == "" {
			return Aggregation{}, &ManualOverrideError{Reason: "a reason is required"}
		}
		if !e.currency.Fits(adj.VATPayable) {
			return Aggregation{}, &ManualOverrideError{Reason: "amount exceeds " + e.currency.Code + " precision"}
		}
	}

	byID := make(map[uuid.UUID]ledger.Tax, len(taxes))
	ids := make([]uuid.UUID, 0, len(taxes))
	for _, t := range taxes {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	totals := ledger.TaxReportTotals{
		SaleVATAmount:     decimal.Zero,
		PurchaseVATAmount: decimal.Zero,
		ExemptAmount:      decimal.Zero,
		ZeroRatedAmount:   decimal.Zero,
		WithholdingAmount: decimal.Zero,
	}
	if len(ids) > 0 {
		lines, err := src.TaxedLines(ctx, period.Start, period.End, ids)
		if err != nil {
			return Aggregation{}, err
		}
		for _, ln := range lines {
			tax, ok := byID[ln.TaxID]
			if !ok || !period.Contains(ln.Date) || !tax.AppliesOn(ln.Date) {
				continue
			}
			if err := e.accumulate(&totals, tax, ln); err != nil {
				return Aggregation{}, err
			}
		}
	}

	totals.DerivedVATPayable = totals.SaleVATAmount.Sub(totals.PurchaseVATAmount)
	totals.VATPayable = totals.DerivedVATPayable
	if adj != nil {
		a := *adj
		a.Reason = strings.TrimSpace(a.Reason)
		totals.VATPayable = a.VATPayable
		totals.ManualAdjustment = &a
	}
	return Aggregation{Period: period, Totals: totals}, nil
}

func (e *Engine) accumulate(t *ledger.TaxReportTotals, tax ledger.Tax, ln ledger.TaxedLine) error {
	net := ln.Credit.Sub(ln.Debit)
	base := net.Abs()
	sale := isSale(tax.Type, net)
	if tax.Category == ledger.TaxCategoryWithholding {
		amt, err := e.lineTax(base, tax, ln)
		if err != nil {
			return err
		}
		t.WithholdingAmount = t.WithholdingAmount.Add(amt)
		return nil
	}
	if tax.Exempt {
		if sale {
			t.ExemptAmount = t.ExemptAmount.Add(base)
		}
		return nil
	}
	if tax.Rate.IsZero() {
		if sale {
			t.ZeroRatedAmount = t.ZeroRatedAmount.Add(base)
		}
		return nil
	}
	amt, err := e.lineTax(base, tax, ln)
	if err != nil {
		return err
	}
	if sale {
		t.SaleVATAmount = t.SaleVATAmount.Add(amt)
	} else {
		t.PurchaseVATAmount = t.PurchaseVATAmount.Add(amt)
	}
	return nil
}

func (e *Engine) lineTax(base decimal.Decimal, tax ledger.Tax, ln ledger.TaxedLine) (decimal.Decimal, error) {
	if ln.TaxAmount != nil {
		return *ln.TaxAmount, nil
	}
	calc, err := e.Calculate(base, tax.Rate)
	if err != nil {
		return decimal.Zero, err
	}
	return calc.TaxAmount, nil
}

func isSale(tt ledger.TaxType, net decimal.Decimal) bool {
	switch tt {
	case ledger.TaxSale:
		return true
	case ledger.TaxPurchase:
		return false
	default:
		return net.IsPositive()
	}
}

var reportTransitions = map[ledger.ReportState]ledger.ReportState{
	ledger.ReportDraft:     ledger.ReportConfirmed,
	ledger.ReportConfirmed: ledger.ReportSubmitted,
}

// Transition checks a tax report state change. Only draft->confirmed and
// confirmed->submitted are legal.
func Transition(from, to ledger.ReportState) error {
	if next, ok := reportTransitions[from]; ok && next == to {
		return nil
	}
	return &InvalidStateTransitionError{From: string(from), To: string(to)}
}
