package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/meta"
)

// AccountType enumerates the broad classification of an account in the chart.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side and holds resources owned by the business.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side and tracks obligations.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeIncome represents inflows that increase equity.
	AccountTypeIncome AccountType = "income"
	// AccountTypeExpense represents outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// Account is an entry of the chart of accounts.
type Account struct {
	ID   uuid.UUID
	Code string
	Name string
	Type AccountType
	// ParentID links the account into the (acyclic) account tree.
	ParentID *uuid.UUID
	// System marks accounts seeded by the engine that cannot be edited.
	System bool
	// Active is false once the account is deactivated (soft delete).
	Active bool
}

// PartnerType classifies a counterparty.
type PartnerType string

const (
	PartnerCustomer PartnerType = "customer"
	PartnerSupplier PartnerType = "supplier"
	PartnerBoth     PartnerType = "both"
)

func (t PartnerType) Valid() bool {
	return t == PartnerCustomer || t == PartnerSupplier || t == PartnerBoth
}

// Partner is a customer or supplier referenced from journal lines.
type Partner struct {
	ID     uuid.UUID
	Code   string
	Name   string
	Type   PartnerType
	VAT    string
	Email  string
	Phone  string
	Active bool
}

// EntryState is the lifecycle state of a journal entry.
type EntryState string

const (
	EntryDraft  EntryState = "draft"
	EntryPosted EntryState = "posted"
)

// JournalEntry is a dated, referenced set of balanced debit/credit lines.
type JournalEntry struct {
	ID   uuid.UUID
	Name string
	// Ref is the sequential human-readable reference number (six digits).
	Ref   string
	Date  time.Time
	State EntryState
	Memo  string
	// Lines keep their submission order for display; order carries no accounting meaning.
	Lines []JournalLine
	// AmountTotal is the validated debit total (equal to the credit total).
	AmountTotal decimal.Decimal
	Metadata    meta.Metadata
	// ReversalOf points at the entry this one reverses.
	ReversalOf *uuid.UUID
	// IsReversed marks that a reversing entry has been posted for this entry.
	IsReversed bool
	CreatedAt  time.Time
}

// Totals sums the debit and credit side of every line.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, ln := range e.Lines {
		debit = debit.Add(ln.Debit)
		credit = credit.Add(ln.Credit)
	}
	return debit, credit
}

// JournalLine posts an amount to one side of an account.
type JournalLine struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	PartnerID *uuid.UUID
	// TaxID tags the line as the taxable base of a tax for report aggregation.
	TaxID *uuid.UUID
	// TaxAmount is the tax booked on this base, when the posting computed one.
	// Reports use it as is; untagged amounts are recomputed from the rate.
	TaxAmount *decimal.Decimal
	Memo      string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// EntryFilter narrows entry listings. Zero values mean "no constraint".
type EntryFilter struct {
	From  *time.Time
	To    *time.Time
	State EntryState
}

// Matches reports whether e passes the filter.
func (f EntryFilter) Matches(e JournalEntry) bool {
	if f.State != "" && e.State != f.State {
		return false
	}
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Date.After(*f.To) {
		return false
	}
	return true
}

// DepreciationMethod selects how periodic depreciation is computed.
type DepreciationMethod string

const (
	MethodStraightLine     DepreciationMethod = "straight_line"
	MethodDecliningBalance DepreciationMethod = "declining_balance"
	// MethodOther is accepted for storage but has no defined computation.
	MethodOther DepreciationMethod = "other"
)

// ParseDepreciationMethod normalizes the method names used by clients, including
// the Korean labels of the admin console. Unknown names map to MethodOther.
func ParseDepreciationMethod(s string) DepreciationMethod {
	switch s {
	case "straight_line", "straight-line", "linear", "정액법":
		return MethodStraightLine
	case "declining_balance", "declining-balance", "degressive", "정률법":
		return MethodDecliningBalance
	default:
		return MethodOther
	}
}

// Asset is a fixed asset whose book value is reduced by depreciation postings.
type Asset struct {
	ID            uuid.UUID
	Code          string
	Name          string
	PurchaseDate  time.Time
	PurchaseValue decimal.Decimal
	// ResidualValue is the floor below which the asset is never depreciated.
	ResidualValue decimal.Decimal
	CurrentValue  decimal.Decimal
	Method        DepreciationMethod
	// UsefulLife is expressed in years; one depreciation run covers one year.
	UsefulLife        int
	LastDepreciatedOn *time.Time
	Active            bool
	// Version increments on every write; used for optimistic concurrency.
	Version int64
}

// TaxType states which side of trade a tax applies to.
type TaxType string

const (
	TaxSale     TaxType = "sale"
	TaxPurchase TaxType = "purchase"
	TaxBoth     TaxType = "both"
)

func (t TaxType) Valid() bool { return t == TaxSale || t == TaxPurchase || t == TaxBoth }

// TaxCategory separates VAT from withholding and other levies.
type TaxCategory string

const (
	TaxCategoryVAT         TaxCategory = "vat"
	TaxCategoryWithholding TaxCategory = "withholding"
	TaxCategoryOther       TaxCategory = "other"
)

func (c TaxCategory) Valid() bool {
	return c == TaxCategoryVAT || c == TaxCategoryWithholding || c == TaxCategoryOther
}

// CalculationMethod states whether the base amount excludes or includes the tax.
type CalculationMethod string

const (
	CalcExclusive CalculationMethod = "exclusive"
	CalcInclusive CalculationMethod = "inclusive"
)

func (m CalculationMethod) Valid() bool { return m == CalcExclusive || m == CalcInclusive }

// Tax is a configured tax rate.
type Tax struct {
	ID   uuid.UUID
	Name string
	Code string
	// Rate is a percentage in [0,100].
	Rate          decimal.Decimal
	Type          TaxType
	Category      TaxCategory
	Method        CalculationMethod
	Exempt        bool
	Active        bool
	EffectiveDate *time.Time
	ExpiryDate    *time.Time
	Description   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppliesOn reports whether the tax is active and within its effective window on day d.
func (t Tax) AppliesOn(d time.Time) bool {
	if !t.Active {
		return false
	}
	day := DateOf(d)
	if t.EffectiveDate != nil && day.Before(DateOf(*t.EffectiveDate)) {
		return false
	}
	if t.ExpiryDate != nil && day.After(DateOf(*t.ExpiryDate)) {
		return false
	}
	return true
}

// TaxedLine is a posted journal line tagged with a tax, as seen by report aggregation.
type TaxedLine struct {
	EntryID   uuid.UUID
	Date      time.Time
	TaxID     uuid.UUID
	TaxAmount *decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// ReportType is the reporting frequency of a tax report.
type ReportType string

const (
	ReportMonthly    ReportType = "monthly"
	ReportQuarterly  ReportType = "quarterly"
	ReportHalfYearly ReportType = "half_yearly"
	ReportYearly     ReportType = "yearly"
)

// ReportState is the tax report lifecycle: draft -> confirmed -> submitted.
type ReportState string

const (
	ReportDraft     ReportState = "draft"
	ReportConfirmed ReportState = "confirmed"
	ReportSubmitted ReportState = "submitted"
)

// ManualAdjustment overrides the derived VAT payable; the reason is mandatory.
type ManualAdjustment struct {
	VATPayable decimal.Decimal
	Reason     string
}

// TaxReportTotals are the aggregated amounts of a tax report.
type TaxReportTotals struct {
	SaleVATAmount     decimal.Decimal
	PurchaseVATAmount decimal.Decimal
	ExemptAmount      decimal.Decimal
	ZeroRatedAmount   decimal.Decimal
	WithholdingAmount decimal.Decimal
	// DerivedVATPayable is always sale - purchase, regardless of any override.
	DerivedVATPayable decimal.Decimal
	// VATPayable equals DerivedVATPayable unless ManualAdjustment is set.
	VATPayable       decimal.Decimal
	ManualAdjustment *ManualAdjustment
}

// TaxReport aggregates tax amounts for one reporting period.
type TaxReport struct {
	ID          uuid.UUID
	Name        string
	ReportType  ReportType
	PeriodKey   string
	PeriodStart time.Time
	PeriodEnd   time.Time
	TaxIDs      []uuid.UUID
	Totals      TaxReportTotals
	State       ReportState
	Notes       string
	GeneratedAt *time.Time
	SubmittedAt *time.Time
	CreatedAt   time.Time
}

// BudgetState is the budget lifecycle: draft -> confirmed -> closed.
type BudgetState string

const (
	BudgetDraft     BudgetState = "draft"
	BudgetConfirmed BudgetState = "confirmed"
	BudgetClosed    BudgetState = "closed"
)

// Budget caps spending on one account over an inclusive date range.
type Budget struct {
	ID        uuid.UUID
	Name      string
	AccountID uuid.UUID
	StartDate time.Time
	EndDate   time.Time
	Amount    decimal.Decimal
	State     BudgetState
	CreatedAt time.Time
}

// BudgetUsage is a budget with its spending measured against posted entries.
type BudgetUsage struct {
	Budget
	// FiscalYear is the calendar year of StartDate.
	FiscalYear int
	Spent      decimal.Decimal
	Remaining  decimal.Decimal
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
