package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/asset"
	"github.com/tinoosan/bookkeeper/internal/service/journal"
)

// Amounts cross the API as decimal strings (shopspring/decimal's JSON form);
// dates as YYYY-MM-DD. RFC3339 timestamps are accepted on input and truncated.

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return ledger.DateOf(t), nil
}

func parseDateParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return parseDateParam(*s)
}

func fmtDate(t time.Time) string { return t.Format(time.DateOnly) }

func fmtDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtDate(*t)
	return &s
}

// Accounts

type accountRequest struct {
	Code     string             `json:"code"`
	Name     string             `json:"name"`
	Type     ledger.AccountType `json:"type"`
	ParentID *uuid.UUID         `json:"parent_id,omitempty"`
}

type accountResponse struct {
	ID       uuid.UUID          `json:"id"`
	Code     string             `json:"code"`
	Name     string             `json:"name"`
	Type     ledger.AccountType `json:"type"`
	ParentID *uuid.UUID         `json:"parent_id,omitempty"`
	System   bool               `json:"system"`
	Active   bool               `json:"active"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{ID: a.ID, Code: a.Code, Name: a.Name, Type: a.Type, ParentID: a.ParentID, System: a.System, Active: a.Active}
}

// Partners

type partnerRequest struct {
	Code  string             `json:"code"`
	Name  string             `json:"name"`
	Type  ledger.PartnerType `json:"type"`
	VAT   string             `json:"vat"`
	Email string             `json:"email"`
	Phone string             `json:"phone"`
}

type partnerResponse struct {
	ID     uuid.UUID          `json:"id"`
	Code   string             `json:"code"`
	Name   string             `json:"name"`
	Type   ledger.PartnerType `json:"type"`
	VAT    string             `json:"vat,omitempty"`
	Email  string             `json:"email,omitempty"`
	Phone  string             `json:"phone,omitempty"`
	Active bool               `json:"active"`
}

func (p partnerRequest) toDomain(id uuid.UUID) ledger.Partner {
	return ledger.Partner{ID: id, Code: p.Code, Name: p.Name, Type: p.Type, VAT: p.VAT, Email: p.Email, Phone: p.Phone}
}

func toPartnerResponse(p ledger.Partner) partnerResponse {
	return partnerResponse{ID: p.ID, Code: p.Code, Name: p.Name, Type: p.Type, VAT: p.VAT, Email: p.Email, Phone: p.Phone, Active: p.Active}
}

// Journal entries

type lineRequest struct {
	AccountID uuid.UUID        `json:"account_id"`
	PartnerID *uuid.UUID       `json:"partner_id,omitempty"`
	TaxID     *uuid.UUID       `json:"tax_id,omitempty"`
	TaxAmount *decimal.Decimal `json:"tax_amount,omitempty"`
	Memo      string           `json:"memo,omitempty"`
	Debit     decimal.Decimal  `json:"debit"`
	Credit    decimal.Decimal  `json:"credit"`
}

type entryRequest struct {
	Name     string            `json:"name"`
	Date     string            `json:"date"`
	State    ledger.EntryState `json:"state"`
	Memo     string            `json:"memo"`
	Lines    []lineRequest     `json:"lines"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (req entryRequest) toDomain() (ledger.JournalEntry, error) {
	e := ledger.JournalEntry{Name: req.Name, State: req.State, Memo: req.Memo}
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			return e, err
		}
		e.Date = d
	}
	if req.Metadata != nil {
		e.Metadata = meta.New(req.Metadata)
		if err := e.Metadata.Validate(); err != nil {
			return e, err
		}
	}
	e.Lines = make([]ledger.JournalLine, 0, len(req.Lines))
	for _, ln := range req.Lines {
		e.Lines = append(e.Lines, ledger.JournalLine{
			AccountID: ln.AccountID,
			PartnerID: ln.PartnerID,
			TaxID:     ln.TaxID,
			TaxAmount: ln.TaxAmount,
			Memo:      ln.Memo,
			Debit:     ln.Debit,
			Credit:    ln.Credit,
		})
	}
	return e, nil
}

type lineResponse struct {
	ID        uuid.UUID        `json:"id"`
	AccountID uuid.UUID        `json:"account_id"`
	PartnerID *uuid.UUID       `json:"partner_id,omitempty"`
	TaxID     *uuid.UUID       `json:"tax_id,omitempty"`
	TaxAmount *decimal.Decimal `json:"tax_amount,omitempty"`
	Memo      string           `json:"memo,omitempty"`
	Debit     decimal.Decimal  `json:"debit"`
	Credit    decimal.Decimal  `json:"credit"`
}

type entryResponse struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Ref         string            `json:"ref"`
	Date        string            `json:"date"`
	State       ledger.EntryState `json:"state"`
	Memo        string            `json:"memo,omitempty"`
	AmountTotal decimal.Decimal   `json:"amount_total"`
	Lines       []lineResponse    `json:"lines"`
	Metadata    meta.Metadata     `json:"metadata,omitempty"`
	ReversalOf  *uuid.UUID        `json:"reversal_of,omitempty"`
	IsReversed  bool              `json:"is_reversed"`
	CreatedAt   time.Time         `json:"created_at"`
}

func toEntryResponse(e ledger.JournalEntry) entryResponse {
	lines := make([]lineResponse, 0, len(e.Lines))
	for _, ln := range e.Lines {
		lines = append(lines, lineResponse{
			ID:        ln.ID,
			AccountID: ln.AccountID,
			PartnerID: ln.PartnerID,
			TaxID:     ln.TaxID,
			TaxAmount: ln.TaxAmount,
			Memo:      ln.Memo,
			Debit:     ln.Debit,
			Credit:    ln.Credit,
		})
	}
	return entryResponse{
		ID:          e.ID,
		Name:        e.Name,
		Ref:         e.Ref,
		Date:        fmtDate(e.Date),
		State:       e.State,
		Memo:        e.Memo,
		AmountTotal: e.AmountTotal,
		Lines:       lines,
		Metadata:    e.Metadata,
		ReversalOf:  e.ReversalOf,
		IsReversed:  e.IsReversed,
		CreatedAt:   e.CreatedAt,
	}
}

type trialBalanceRow struct {
	AccountID uuid.UUID          `json:"account_id"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	Type      ledger.AccountType `json:"type"`
	Debit     decimal.Decimal    `json:"debit"`
	Credit    decimal.Decimal    `json:"credit"`
	Balance   decimal.Decimal    `json:"balance"`
}

type trialBalanceResponse struct {
	AsOf        *string           `json:"as_of,omitempty"`
	Rows        []trialBalanceRow `json:"rows"`
	DebitTotal  decimal.Decimal   `json:"debit_total"`
	CreditTotal decimal.Decimal   `json:"credit_total"`
}

func toTrialBalanceResponse(tb journal.TrialBalance, asOf *time.Time) trialBalanceResponse {
	out := trialBalanceResponse{AsOf: fmtDatePtr(asOf), Rows: make([]trialBalanceRow, 0, len(tb.Rows)), DebitTotal: tb.DebitTotal, CreditTotal: tb.CreditTotal}
	for _, r := range tb.Rows {
		out.Rows = append(out.Rows, trialBalanceRow{
			AccountID: r.Account.ID, Code: r.Account.Code, Name: r.Account.Name, Type: r.Account.Type,
			Debit: r.Debit, Credit: r.Credit, Balance: r.Balance,
		})
	}
	return out
}

// Assets

type assetRequest struct {
	Code          string           `json:"code"`
	Name          string           `json:"name"`
	PurchaseDate  string           `json:"purchase_date"`
	PurchaseValue decimal.Decimal  `json:"purchase_value"`
	ResidualValue decimal.Decimal  `json:"residual_value"`
	CurrentValue  *decimal.Decimal `json:"current_value,omitempty"`
	Method        string           `json:"method"`
	UsefulLife    int              `json:"useful_life"`
	Version       int64            `json:"version,omitempty"`
}

func (req assetRequest) toDomain(id uuid.UUID) (asset.Input, error) {
	a := ledger.Asset{
		ID:            id,
		Code:          req.Code,
		Name:          req.Name,
		PurchaseValue: req.PurchaseValue,
		ResidualValue: req.ResidualValue,
		Method:        ledger.ParseDepreciationMethod(req.Method),
		UsefulLife:    req.UsefulLife,
		Version:       req.Version,
	}
	if req.PurchaseDate == "" {
		return asset.Input{}, errors.New("purchase_date is required")
	}
	d, err := parseDate(req.PurchaseDate)
	if err != nil {
		return asset.Input{}, err
	}
	a.PurchaseDate = d
	return asset.Input{Asset: a, CurrentValue: req.CurrentValue}, nil
}

type assetResponse struct {
	ID                uuid.UUID                 `json:"id"`
	Code              string                    `json:"code"`
	Name              string                    `json:"name"`
	PurchaseDate      string                    `json:"purchase_date"`
	PurchaseValue     decimal.Decimal           `json:"purchase_value"`
	ResidualValue     decimal.Decimal           `json:"residual_value"`
	CurrentValue      decimal.Decimal           `json:"current_value"`
	Method            ledger.DepreciationMethod `json:"method"`
	UsefulLife        int                       `json:"useful_life"`
	LastDepreciatedOn *string                   `json:"last_depreciated_on,omitempty"`
	Active            bool                      `json:"active"`
	Version           int64                     `json:"version"`
}

func toAssetResponse(a ledger.Asset) assetResponse {
	return assetResponse{
		ID:                a.ID,
		Code:              a.Code,
		Name:              a.Name,
		PurchaseDate:      fmtDate(a.PurchaseDate),
		PurchaseValue:     a.PurchaseValue,
		ResidualValue:     a.ResidualValue,
		CurrentValue:      a.CurrentValue,
		Method:            a.Method,
		UsefulLife:        a.UsefulLife,
		LastDepreciatedOn: fmtDatePtr(a.LastDepreciatedOn),
		Active:            a.Active,
		Version:           a.Version,
	}
}

type depreciateRequest struct {
	AssetIDs         []uuid.UUID `json:"asset_ids"`
	Date             string      `json:"date,omitempty"`
	ExpenseAccountID *uuid.UUID  `json:"expense_account_id,omitempty"`
	ContraAccountID  *uuid.UUID  `json:"contra_account_id,omitempty"`
}

// depreciationResult is one asset's outcome: a posting on success, a coded
// reason on failure.
type depreciationResult struct {
	AssetID uuid.UUID        `json:"asset_id"`
	Success bool             `json:"success"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Entry   *entryResponse   `json:"entry,omitempty"`
	Asset   *assetResponse   `json:"asset,omitempty"`
	Code    string           `json:"code,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

func toDepreciationResult(o asset.Outcome) depreciationResult {
	res := depreciationResult{AssetID: o.AssetID}
	if o.Err != nil {
		_, res.Code = mapError(o.Err)
		res.Reason = o.Err.Error()
		return res
	}
	res.Success = true
	amt := o.Amount
	res.Amount = &amt
	if o.Entry != nil {
		e := toEntryResponse(*o.Entry)
		res.Entry = &e
	}
	if o.Asset != nil {
		a := toAssetResponse(*o.Asset)
		res.Asset = &a
	}
	return res
}

type scheduleRow struct {
	Period       int             `json:"period"`
	Date         string          `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	CurrentValue decimal.Decimal `json:"current_value"`
}

func toScheduleRows(rows []posting.ScheduleRow) []scheduleRow {
	out := make([]scheduleRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, scheduleRow{Period: r.Period, Date: fmtDate(r.Date), Amount: r.Amount, CurrentValue: r.CurrentValue})
	}
	return out
}

// Taxes

type taxRequest struct {
	Name          string                   `json:"name"`
	Code          string                   `json:"code"`
	Rate          decimal.Decimal          `json:"rate"`
	Type          ledger.TaxType           `json:"type"`
	Category      ledger.TaxCategory       `json:"category"`
	Method        ledger.CalculationMethod `json:"calculation_method"`
	Exempt        bool                     `json:"exempt"`
	EffectiveDate *string                  `json:"effective_date,omitempty"`
	ExpiryDate    *string                  `json:"expiry_date,omitempty"`
	Description   string                   `json:"description"`
}

func (req taxRequest) toDomain(id uuid.UUID) (ledger.Tax, error) {
	t := ledger.Tax{
		ID: id, Name: req.Name, Code: req.Code, Rate: req.Rate, Type: req.Type, Category: req.Category,
		Method: req.Method, Exempt: req.Exempt, Description: req.Description,
	}
	var err error
	if t.EffectiveDate, err = parseOptionalDate(req.EffectiveDate); err != nil {
		return t, err
	}
	if t.ExpiryDate, err = parseOptionalDate(req.ExpiryDate); err != nil {
		return t, err
	}
	return t, nil
}

type taxResponse struct {
	ID            uuid.UUID                `json:"id"`
	Name          string                   `json:"name"`
	Code          string                   `json:"code"`
	Rate          decimal.Decimal          `json:"rate"`
	Type          ledger.TaxType           `json:"type"`
	Category      ledger.TaxCategory       `json:"category"`
	Method        ledger.CalculationMethod `json:"calculation_method"`
	Exempt        bool                     `json:"exempt"`
	Active        bool                     `json:"active"`
	EffectiveDate *string                  `json:"effective_date,omitempty"`
	ExpiryDate    *string                  `json:"expiry_date,omitempty"`
	Description   string                   `json:"description,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

func toTaxResponse(t ledger.Tax) taxResponse {
	return taxResponse{
		ID: t.ID, Name: t.Name, Code: t.Code, Rate: t.Rate, Type: t.Type, Category: t.Category,
		Method: t.Method, Exempt: t.Exempt, Active: t.Active,
		EffectiveDate: fmtDatePtr(t.EffectiveDate), ExpiryDate: fmtDatePtr(t.ExpiryDate),
		Description: t.Description, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

// calculateRequest accepts either {supply_amount, tax_rate} or {tax_id, amount}.
type calculateRequest struct {
	SupplyAmount *decimal.Decimal `json:"supply_amount,omitempty"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
	Inclusive    bool             `json:"inclusive,omitempty"`
	TaxID        *uuid.UUID       `json:"tax_id,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
}

type calculationResponse struct {
	SupplyAmount decimal.Decimal `json:"supply_amount"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

func toCalculationResponse(c posting.TaxCalculation) calculationResponse {
	return calculationResponse{SupplyAmount: c.SupplyAmount, TaxRate: c.TaxRate, TaxAmount: c.TaxAmount, TotalAmount: c.TotalAmount}
}

// Tax reports

type taxReportRequest struct {
	Name       string            `json:"name"`
	ReportType ledger.ReportType `json:"report_type"`
	PeriodKey  string            `json:"period_key"`
	TaxIDs     []uuid.UUID       `json:"tax_ids,omitempty"`
	Notes      string            `json:"notes"`
}

func (req taxReportRequest) toDomain(id uuid.UUID) ledger.TaxReport {
	return ledger.TaxReport{ID: id, Name: req.Name, ReportType: req.ReportType, PeriodKey: req.PeriodKey, TaxIDs: req.TaxIDs, Notes: req.Notes}
}

type manualAdjustment struct {
	VATPayable decimal.Decimal `json:"vat_payable"`
	Reason     string          `json:"reason"`
}

// generateRequest is the optional body of POST /tax-reports/{id}/generate. A bare
// vat_payable is an unknown field; overrides go through manual_adjustment.
type generateRequest struct {
	ManualAdjustment *manualAdjustment `json:"manual_adjustment,omitempty"`
}

type taxReportTotals struct {
	SaleVATAmount     decimal.Decimal   `json:"sale_vat_amount"`
	PurchaseVATAmount decimal.Decimal   `json:"purchase_vat_amount"`
	ExemptAmount      decimal.Decimal   `json:"exempt_amount"`
	ZeroRatedAmount   decimal.Decimal   `json:"zero_rated_amount"`
	WithholdingAmount decimal.Decimal   `json:"withholding_amount"`
	DerivedVATPayable decimal.Decimal   `json:"derived_vat_payable"`
	VATPayable        decimal.Decimal   `json:"vat_payable"`
	ManualOverride    bool              `json:"manual_override"`
	ManualAdjustment  *manualAdjustment `json:"manual_adjustment,omitempty"`
}

type taxReportResponse struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	ReportType  ledger.ReportType  `json:"report_type"`
	PeriodKey   string             `json:"period_key"`
	PeriodStart string             `json:"period_start"`
	PeriodEnd   string             `json:"period_end"`
	TaxIDs      []uuid.UUID        `json:"tax_ids"`
	State       ledger.ReportState `json:"state"`
	Notes       string             `json:"notes,omitempty"`
	Totals      taxReportTotals    `json:"totals"`
	GeneratedAt *time.Time         `json:"generated_at,omitempty"`
	SubmittedAt *time.Time         `json:"submitted_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func toTaxReportResponse(r ledger.TaxReport) taxReportResponse {
	t := r.Totals
	totals := taxReportTotals{
		SaleVATAmount:     t.SaleVATAmount,
		PurchaseVATAmount: t.PurchaseVATAmount,
		ExemptAmount:      t.ExemptAmount,
		ZeroRatedAmount:   t.ZeroRatedAmount,
		WithholdingAmount: t.WithholdingAmount,
		DerivedVATPayable: t.DerivedVATPayable,
		VATPayable:        t.VATPayable,
	}
	if t.ManualAdjustment != nil {
		totals.ManualOverride = true
		totals.ManualAdjustment = &manualAdjustment{VATPayable: t.ManualAdjustment.VATPayable, Reason: t.ManualAdjustment.Reason}
	}
	ids := r.TaxIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return taxReportResponse{
		ID:          r.ID,
		Name:        r.Name,
		ReportType:  r.ReportType,
		PeriodKey:   r.PeriodKey,
		PeriodStart: fmtDate(r.PeriodStart),
		PeriodEnd:   fmtDate(r.PeriodEnd),
		TaxIDs:      ids,
		State:       r.State,
		Notes:       r.Notes,
		Totals:      totals,
		GeneratedAt: r.GeneratedAt,
		SubmittedAt: r.SubmittedAt,
		CreatedAt:   r.CreatedAt,
	}
}

// Budgets

type budgetRequest struct {
	Name      string          `json:"name"`
	AccountID uuid.UUID       `json:"account_id"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	Amount    decimal.Decimal `json:"amount"`
}

func (req budgetRequest) toDomain(id uuid.UUID) (ledger.Budget, error) {
	if req.StartDate == "" || req.EndDate == "" {
		return ledger.Budget{}, errors.New("start_date and end_date are required")
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return ledger.Budget{}, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return ledger.Budget{}, err
	}
	return ledger.Budget{ID: id, Name: req.Name, AccountID: req.AccountID, StartDate: start, EndDate: end, Amount: req.Amount}, nil
}

type budgetResponse struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	AccountID       uuid.UUID          `json:"account_id"`
	StartDate       string             `json:"start_date"`
	EndDate         string             `json:"end_date"`
	FiscalYear      int                `json:"fiscal_year"`
	Amount          decimal.Decimal    `json:"amount"`
	SpentAmount     decimal.Decimal    `json:"spent_amount"`
	RemainingAmount decimal.Decimal    `json:"remaining_amount"`
	State           ledger.BudgetState `json:"state"`
	CreatedAt       time.Time          `json:"created_at"`
}

func toBudgetResponse(u ledger.BudgetUsage) budgetResponse {
	return budgetResponse{
		ID:              u.ID,
		Name:            u.Name,
		AccountID:       u.AccountID,
		StartDate:       fmtDate(u.StartDate),
		EndDate:         fmtDate(u.EndDate),
		FiscalYear:      u.FiscalYear,
		Amount:          u.Amount,
		SpentAmount:     u.Spent,
		RemainingAmount: u.Remaining,
		State:           u.State,
		CreatedAt:       u.CreatedAt,
	}
}

// Auto-journal rules

type autoEntriesRequest struct {
	Date  string            `json:"date,omitempty"`
	Rules []json.RawMessage `json:"rules"`
}

type ruleResult struct {
	Index   int            `json:"index"`
	Success bool           `json:"success"`
	Entry   *entryResponse `json:"entry,omitempty"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
}
