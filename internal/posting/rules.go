package posting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
)

// RuleKind tags an auto-journal rule.
type RuleKind string

const (
	RuleTransfer      RuleKind = "transfer"
	RuleTaxedSale     RuleKind = "taxed_sale"
	RuleTaxedPurchase RuleKind = "taxed_purchase"
)

// Rule is a closed set of auto-journal templates. Each kind expands to a balanced
// set of journal lines; new kinds are added here, not by callers.
type Rule interface {
	Kind() RuleKind
	lines(e *Engine, taxes TaxLookup) ([]ledger.JournalLine, error)
	header() ruleHeader
}

// TaxLookup resolves tax references used by taxed rules.
type TaxLookup interface {
	Tax(id uuid.UUID) (ledger.Tax, bool)
}

type ruleHeader struct {
	KindTag RuleKind `json:"kind"`
	Name    string   `json:"name"`
	Memo    string   `json:"memo,omitempty"`
	// Date is an optional YYYY-MM-DD override of the posting date.
	Date string `json:"date,omitempty"`
}

func (h ruleHeader) header() ruleHeader { return h }

// TransferRule moves Amount from CreditAccountID to DebitAccountID.
type TransferRule struct {
	ruleHeader
	DebitAccountID  uuid.UUID       `json:"debit_account_id"`
	CreditAccountID uuid.UUID       `json:"credit_account_id"`
	PartnerID       *uuid.UUID      `json:"partner_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
}

// TaxedSaleRule books a sale: receivable for the total, revenue for the supply
// (tagged with the tax) and tax payable for the tax.
type TaxedSaleRule struct {
	ruleHeader
	ReceivableAccountID uuid.UUID       `json:"receivable_account_id"`
	RevenueAccountID    uuid.UUID       `json:"revenue_account_id"`
	TaxPayableAccountID uuid.UUID       `json:"tax_payable_account_id"`
	TaxID               uuid.UUID       `json:"tax_id"`
	PartnerID           *uuid.UUID      `json:"partner_id,omitempty"`
	// SupplyAmount is the gross amount when the tax is inclusive.
	SupplyAmount decimal.Decimal `json:"supply_amount"`
}

// TaxedPurchaseRule books a purchase: expense for the supply (tagged with the tax),
// recoverable tax for the tax and payable for the total.
type TaxedPurchaseRule struct {
	ruleHeader
	ExpenseAccountID       uuid.UUID       `json:"expense_account_id"`
	TaxReceivableAccountID uuid.UUID       `json:"tax_receivable_account_id"`
	PayableAccountID       uuid.UUID       `json:"payable_account_id"`
	TaxID                  uuid.UUID       `json:"tax_id"`
	PartnerID              *uuid.UUID      `json:"partner_id,omitempty"`
	SupplyAmount           decimal.Decimal `json:"supply_amount"`
}

func (TransferRule) Kind() RuleKind      { return RuleTransfer }
func (TaxedSaleRule) Kind() RuleKind     { return RuleTaxedSale }
func (TaxedPurchaseRule) Kind() RuleKind { return RuleTaxedPurchase }

// DecodeRule decodes one {"kind": ..., ...} object into its concrete rule.
// Unknown kinds and unknown fields are rejected.
func DecodeRule(raw []byte) (Rule, error) {
	var head struct {
		Kind RuleKind `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, &InvalidRuleError{Reason: err.Error()}
	}
	var r Rule
	switch head.Kind {
	case RuleTransfer:
		r = &TransferRule{}
	case RuleTaxedSale:
		r = &TaxedSaleRule{}
	case RuleTaxedPurchase:
		r = &TaxedPurchaseRule{}
	case "":
		return nil, &InvalidRuleError{Reason: "kind is required"}
	default:
		return nil, &InvalidRuleError{Kind: string(head.Kind), Reason: "unknown kind"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(r); err != nil {
		return nil, &InvalidRuleError{Kind: string(head.Kind), Reason: err.Error()}
	}
	h := r.header()
	if strings.TrimSpace(h.Name) == "" {
		return nil, &InvalidRuleError{Kind: string(head.Kind), Reason: "name is required"}
	}
	if h.Date != "" {
		if _, err := time.Parse(time.DateOnly, h.Date); err != nil {
			return nil, &InvalidRuleError{Kind: string(head.Kind), Reason: "date must be YYYY-MM-DD"}
		}
	}
	switch v := r.(type) {
	case *TransferRule:
		return *v, nil
	case *TaxedSaleRule:
		return *v, nil
	case *TaxedPurchaseRule:
		return *v, nil
	}
	return r, nil
}

// BuildRuleEntry expands r into a draft journal entry dated date, or the rule's own
// date when set. The entry is not validated against the chart; callers run Validate.
func (e *Engine) BuildRuleEntry(r Rule, taxes TaxLookup, date time.Time) (ledger.JournalEntry, error) {
	h := r.header()
	if h.Date != "" {
		d, err := time.Parse(time.DateOnly, h.Date)
		if err != nil {
			return ledger.JournalEntry{}, &InvalidRuleError{Kind: string(r.Kind()), Reason: "date must be YYYY-MM-DD"}
		}
		date = d
	}
	lines, err := r.lines(e, taxes)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	memo := h.Memo
	if memo == "" {
		memo = h.Name
	}
	return ledger.JournalEntry{
		Name:  h.Name,
		Date:  ledger.DateOf(date),
		State: ledger.EntryDraft,
		Memo:  memo,
		Lines: lines,
		Metadata: meta.New(map[string]string{
			meta.KeySource: meta.SourceRule,
			meta.KeyRule:   string(r.Kind()),
		}),
	}, nil
}

func (e *Engine) ruleAmount(kind RuleKind, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &InvalidRuleError{Kind: string(kind), Reason: "amount must be positive"}
	}
	if !e.currency.Fits(amount) {
		return &InvalidRuleError{Kind: string(kind), Reason: "amount exceeds " + e.currency.Code + " precision"}
	}
	return nil
}

func (e *Engine) ruleTax(kind RuleKind, taxes TaxLookup, id uuid.UUID, amount decimal.Decimal) (TaxCalculation, error) {
	if taxes == nil {
		return TaxCalculation{}, &InvalidRuleError{Kind: string(kind), Reason: "no tax catalog"}
	}
	tax, ok := taxes.Tax(id)
	if !ok {
		return TaxCalculation{}, &InvalidRuleError{Kind: string(kind), Reason: fmt.Sprintf("unknown tax %s", id)}
	}
	if !tax.Active {
		return TaxCalculation{}, &InvalidRuleError{Kind: string(kind), Reason: fmt.Sprintf("tax %s is inactive", tax.Code)}
	}
	return e.ComputeFor(tax, amount)
}

func (r TransferRule) lines(e *Engine, _ TaxLookup) ([]ledger.JournalLine, error) {
	if err := e.ruleAmount(r.Kind(), r.Amount); err != nil {
		return nil, err
	}
	return []ledger.JournalLine{
		{AccountID: r.DebitAccountID, PartnerID: r.PartnerID, Memo: r.Memo, Debit: r.Amount, Credit: decimal.Zero},
		{AccountID: r.CreditAccountID, PartnerID: r.PartnerID, Memo: r.Memo, Debit: decimal.Zero, Credit: r.Amount},
	}, nil
}

func (r TaxedSaleRule) lines(e *Engine, taxes TaxLookup) ([]ledger.JournalLine, error) {
	if err := e.ruleAmount(r.Kind(), r.SupplyAmount); err != nil {
		return nil, err
	}
	calc, err := e.ruleTax(r.Kind(), taxes, r.TaxID, r.SupplyAmount)
	if err != nil {
		return nil, err
	}
	taxID, booked := r.TaxID, calc.TaxAmount
	out := []ledger.JournalLine{
		{AccountID: r.ReceivableAccountID, PartnerID: r.PartnerID, Memo: r.Memo, Debit: calc.TotalAmount, Credit: decimal.Zero},
		{AccountID: r.RevenueAccountID, PartnerID: r.PartnerID, TaxID: &taxID, TaxAmount: &booked, Memo: r.Memo, Debit: decimal.Zero, Credit: calc.SupplyAmount},
	}
	if calc.TaxAmount.IsPositive() {
		out = append(out, ledger.JournalLine{AccountID: r.TaxPayableAccountID, PartnerID: r.PartnerID, Memo: r.Memo, Debit: decimal.Zero, Credit: calc.TaxAmount})
	}
	return out, nil
}

func (r TaxedPurchaseRule) lines(e *Engine, taxes TaxLookup) ([]ledger.JournalLine, error) {
	if err := e.ruleAmount(r.Kind(), r.SupplyAmount); err != nil {
		return nil, err
	}
	calc, err := e.ruleTax(r.Kind(), taxes, r.TaxID, r.SupplyAmount)
	if err != nil {
		return nil, err
	}
	taxID, booked := r.TaxID, calc.TaxAmount
	out := []ledger.JournalLine{
		{AccountID: r.ExpenseAccountID, PartnerID: r.PartnerID, TaxID: &taxID, TaxAmount: &booked, Memo: r.Memo, Debit: calc.SupplyAmount, Credit: decimal.Zero},
	}
	if calc.TaxAmount.IsPositive() {
		out = append(out, ledger.JournalLine{AccountID: r.TaxReceivableAccountID, PartnerID: r.PartnerID, Memo: r.Memo, Debit: calc.TaxAmount, Credit: decimal.Zero})
	}
	out = append(out, ledger.JournalLine{AccountID: r.PayableAccountID, PartnerID: r.PartnerID, Memo: r.Memo, Debit: decimal.Zero, Credit: calc.TotalAmount})
	return out, nil
}
