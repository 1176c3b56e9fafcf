package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/db/migrations"
	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

// openFresh opens the store, applies the schema and empties every table.
func openFresh(t *testing.T) *Store {
	t.Helper()
	dsn := getTestDSN(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	script, err := migrations.Script()
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if err := s.Migrate(ctx, script); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `truncate table budgets, tax_reports, assets, entry_idempotency, journal_lines, journal_entries, sequences, taxes, partners, accounts cascade`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestStore_AccountsAndEntries(t *testing.T) {
	s := openFresh(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}

	cash := ledger.Account{ID: uuid.New(), Code: "1010", Name: "Cash", Type: ledger.AccountTypeAsset, Active: true}
	sales := ledger.Account{ID: uuid.New(), Code: "4000", Name: "Sales", Type: ledger.AccountTypeIncome, Active: true}
	for _, a := range []ledger.Account{cash, sales} {
		if _, err := s.CreateAccount(ctx, a); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	if _, err := s.CreateAccount(ctx, ledger.Account{ID: uuid.New(), Code: "1010", Name: "Dup", Type: ledger.AccountTypeAsset}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict on duplicate code, got %v", err)
	}

	seq, err := s.NextSequence(ctx, "journal_entry")
	if err != nil || seq != 1 {
		t.Fatalf("first sequence = %d, %v", seq, err)
	}
	amt := decimal.RequireFromString("1234.50")
	e := ledger.JournalEntry{
		ID:          uuid.New(),
		Ref:         "000001",
		Date:        time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		State:       ledger.EntryPosted,
		AmountTotal: amt,
		Metadata:    meta.New(map[string]string{meta.KeySource: meta.SourceManual}),
		CreatedAt:   time.Now().UTC(),
		Lines: []ledger.JournalLine{
			{ID: uuid.New(), AccountID: cash.ID, Debit: amt, Credit: decimal.Zero},
			{ID: uuid.New(), AccountID: sales.ID, Debit: decimal.Zero, Credit: amt},
		},
	}
	if _, err := s.CreateJournalEntry(ctx, e); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	got, err := s.GetEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if len(got.Lines) != 2 || got.Lines[0].AccountID != cash.ID {
		t.Fatalf("lines not returned in order: %+v", got.Lines)
	}
	if !got.Lines[0].Debit.Equal(amt) || !got.AmountTotal.Equal(amt) {
		t.Fatalf("amount round trip: %s / %s", got.Lines[0].Debit, got.AmountTotal)
	}
	if v, _ := got.Metadata.Get(meta.KeySource); v != meta.SourceManual {
		t.Fatalf("metadata lost: %v", got.Metadata)
	}

	used, err := s.AccountInUse(ctx, cash.ID)
	if err != nil || !used {
		t.Fatalf("account in use = %v, %v", used, err)
	}

	keyed := e
	keyed.ID, keyed.Ref = uuid.New(), "000010"
	keyed.Lines = []ledger.JournalLine{
		{ID: uuid.New(), AccountID: cash.ID, Debit: amt, Credit: decimal.Zero},
		{ID: uuid.New(), AccountID: sales.ID, Debit: decimal.Zero, Credit: amt},
	}
	if _, replayed, err := s.CreateKeyedJournalEntry(ctx, "test-key-1", keyed); err != nil || replayed {
		t.Fatalf("keyed create: %v replayed=%v", err, replayed)
	}
	loser := keyed
	loser.ID, loser.Ref = uuid.New(), "000011"
	loser.Lines = []ledger.JournalLine{{ID: uuid.New(), AccountID: cash.ID, Debit: amt, Credit: decimal.Zero}}
	got2, replayed, err := s.CreateKeyedJournalEntry(ctx, "test-key-1", loser)
	if err != nil || !replayed || got2.ID != keyed.ID {
		t.Fatalf("keyed replay: %v replayed=%v id=%s", err, replayed, got2.ID)
	}
	if _, err := s.GetEntry(ctx, loser.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("losing entry stored: %v", err)
	}

	rev := e
	rev.ID = uuid.New()
	rev.Ref = "000002"
	rev.ReversalOf = &e.ID
	rev.Lines = []ledger.JournalLine{
		{ID: uuid.New(), AccountID: cash.ID, Debit: decimal.Zero, Credit: amt},
		{ID: uuid.New(), AccountID: sales.ID, Debit: amt, Credit: decimal.Zero},
	}
	if _, err := s.CreateReversal(ctx, e.ID, rev); err != nil {
		t.Fatalf("reverse: %v", err)
	}
	rev.ID, rev.Ref = uuid.New(), "000003"
	if _, err := s.CreateReversal(ctx, e.ID, rev); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("expected conflict on second reversal, got %v", err)
	}

	list, err := s.ListEntries(ctx, ledger.EntryFilter{State: ledger.EntryPosted})
	if err != nil || len(list) != 3 {
		t.Fatalf("list entries = %d, %v", len(list), err)
	}
}

func TestStore_AssetVersioning(t *testing.T) {
	s := openFresh(t)
	ctx := context.Background()

	a := ledger.Asset{
		ID: uuid.New(), Code: "AST-1", Name: "Laptop",
		PurchaseDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PurchaseValue: decimal.NewFromInt(1000), ResidualValue: decimal.NewFromInt(100), CurrentValue: decimal.NewFromInt(1000),
		Method: ledger.MethodStraightLine, UsefulLife: 5, Active: true, Version: 1,
	}
	if _, err := s.CreateAsset(ctx, a); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	a.CurrentValue = decimal.NewFromInt(820)
	updated, err := s.UpdateAsset(ctx, a)
	if err != nil || updated.Version != 2 {
		t.Fatalf("update asset = %d, %v", updated.Version, err)
	}
	if _, err := s.UpdateAsset(ctx, a); !errors.Is(err, errs.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	got, err := s.GetAsset(ctx, a.ID)
	if err != nil || !got.CurrentValue.Equal(decimal.NewFromInt(820)) {
		t.Fatalf("get asset = %s, %v", got.CurrentValue, err)
	}
}

func TestStore_TaxReportRoundTrip(t *testing.T) {
	s := openFresh(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	tax := ledger.Tax{ID: uuid.New(), Code: "TAX2025000001", Name: "VAT 10%", Rate: decimal.NewFromInt(10),
		Type: ledger.TaxSale, Category: ledger.TaxCategoryVAT, Method: ledger.CalcExclusive, Active: true, CreatedAt: now, UpdatedAt: now}
	if _, err := s.CreateTax(ctx, tax); err != nil {
		t.Fatalf("create tax: %v", err)
	}
	r := ledger.TaxReport{
		ID: uuid.New(), Name: "Q1", ReportType: ledger.ReportQuarterly, PeriodKey: "2025-q1",
		PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), PeriodEnd: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		TaxIDs: []uuid.UUID{tax.ID}, State: ledger.ReportDraft, CreatedAt: now,
		Totals: ledger.TaxReportTotals{
			SaleVATAmount: decimal.NewFromInt(100), VATPayable: decimal.NewFromInt(80), DerivedVATPayable: decimal.NewFromInt(100),
			ManualAdjustment: &ledger.ManualAdjustment{VATPayable: decimal.NewFromInt(80), Reason: "credit carried forward"},
		},
	}
	if _, err := s.CreateTaxReport(ctx, r); err != nil {
		t.Fatalf("create report: %v", err)
	}
	got, err := s.GetTaxReport(ctx, r.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if len(got.TaxIDs) != 1 || got.TaxIDs[0] != tax.ID {
		t.Fatalf("tax ids = %v", got.TaxIDs)
	}
	if got.Totals.ManualAdjustment == nil || got.Totals.ManualAdjustment.Reason != "credit carried forward" {
		t.Fatalf("manual adjustment lost: %+v", got.Totals)
	}
	if err := s.DeleteTaxReport(ctx, r.ID); err != nil {
		t.Fatalf("delete report: %v", err)
	}
	if _, err := s.GetTaxReport(ctx, r.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_BudgetRoundTrip(t *testing.T) {
	s := openFresh(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rent := ledger.Account{ID: uuid.New(), Code: "6300", Name: "Rent", Type: ledger.AccountTypeExpense, Active: true}
	if _, err := s.CreateAccount(ctx, rent); err != nil {
		t.Fatalf("create account: %v", err)
	}
	b := ledger.Budget{
		ID: uuid.New(), Name: "Rent 2025", AccountID: rent.ID,
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("12000.50"), State: ledger.BudgetDraft, CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if _, err := s.CreateBudget(ctx, b); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	b.State = ledger.BudgetConfirmed
	if _, err := s.UpdateBudget(ctx, b); err != nil {
		t.Fatalf("update budget: %v", err)
	}
	got, err := s.GetBudget(ctx, b.ID)
	if err != nil {
		t.Fatalf("get budget: %v", err)
	}
	if got.State != ledger.BudgetConfirmed || !got.Amount.Equal(b.Amount) || !got.EndDate.Equal(b.EndDate) || got.AccountID != rent.ID {
		t.Fatalf("unexpected budget: %+v", got)
	}
	if err := s.DeleteBudget(ctx, b.ID); err != nil {
		t.Fatalf("delete budget: %v", err)
	}
	if _, err := s.GetBudget(ctx, b.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
