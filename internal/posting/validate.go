package posting

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// AccountLookup resolves account references. *registry.Registry implements it.
type AccountLookup interface {
	Lookup(id uuid.UUID) (ledger.Account, bool)
}

// PartnerLookup resolves partner references on lines.
type PartnerLookup interface {
	Partner(id uuid.UUID) (ledger.Partner, bool)
}

// ValidatedEntry is an entry that passed Validate, with its totals.
type ValidatedEntry struct {
	Entry       ledger.JournalEntry
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	LineCount   int
}

// Validate checks the double-entry rules of entry against the chart of accounts.
// A nil partners lookup skips partner checks. On success the returned entry has
// AmountTotal set to the debit total.
func (e *Engine) Validate(accounts AccountLookup, partners PartnerLookup, entry ledger.JournalEntry) (ValidatedEntry, error) {
	if len(entry.Lines) == 0 {
		return ValidatedEntry{}, &EmptyEntryError{}
	}
	for i, ln := range entry.Lines {
		if ln.AccountID == uuid.Nil {
			return ValidatedEntry{}, &UnknownAccountError{LineIndex: i}
		}
		acc, ok := accounts.Lookup(ln.AccountID)
		if !ok {
			return ValidatedEntry{}, &UnknownAccountError{LineIndex: i, AccountID: ln.AccountID}
		}
		if !acc.Active {
			return ValidatedEntry{}, &InactiveAccountError{LineIndex: i, AccountID: ln.AccountID}
		}
		if err := e.checkLineAmounts(i, ln); err != nil {
			return ValidatedEntry{}, err
		}
		if ln.PartnerID != nil && partners != nil {
			if _, ok := partners.Partner(*ln.PartnerID); !ok {
				return ValidatedEntry{}, &UnknownPartnerError{LineIndex: i, PartnerID: *ln.PartnerID}
			}
		}
	}
	debit, credit := entry.Totals()
	if diff := debit.Sub(credit).Abs(); diff.GreaterThanOrEqual(ledger.BalanceTolerance) {
		return ValidatedEntry{}, &UnbalancedEntryError{DebitTotal: debit, CreditTotal: credit, Difference: diff}
	}
	entry.AmountTotal = debit
	return ValidatedEntry{Entry: entry, DebitTotal: debit, CreditTotal: credit, LineCount: len(entry.Lines)}, nil
}

func (e *Engine) checkLineAmounts(i int, ln ledger.JournalLine) error {
	switch {
	case ln.Debit.IsNegative() || ln.Credit.IsNegative():
		return &InvalidLineError{LineIndex: i, Reason: "amounts must not be negative"}
	case ln.Debit.IsPositive() && ln.Credit.IsPositive():
		return &InvalidLineError{LineIndex: i, Reason: "line has both debit and credit"}
	case ln.Debit.IsZero() && ln.Credit.IsZero():
		return &InvalidLineError{LineIndex: i, Reason: "line has neither debit nor credit"}
	case !e.currency.Fits(ln.Debit) || !e.currency.Fits(ln.Credit):
		return &InvalidLineError{LineIndex: i, Reason: "amount exceeds " + e.currency.Code + " precision"}
	case ln.TaxAmount != nil && ln.TaxID == nil:
		return &InvalidLineError{LineIndex: i, Reason: "tax_amount requires tax_id"}
	case ln.TaxAmount != nil && (ln.TaxAmount.IsNegative() || !e.currency.Fits(*ln.TaxAmount)):
		return &InvalidLineError{LineIndex: i, Reason: "tax_amount must be a non-negative " + e.currency.Code + " amount"}
	}
	return nil
}
