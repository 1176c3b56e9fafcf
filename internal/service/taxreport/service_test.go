package taxreport_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/dictionary"
	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/account"
	"github.com/tinoosan/bookkeeper/internal/service/journal"
	"github.com/tinoosan/bookkeeper/internal/service/tax"
	"github.com/tinoosan/bookkeeper/internal/service/taxreport"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	reports  taxreport.Service
	journal  journal.Service
	sale     ledger.Tax
	purchase ledger.Tax
	acc      map[string]uuid.UUID
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	engine := posting.New(ledger.MustParseCurrency("KRW"))
	accs, err := account.New(store, store).EnsureChart(ctx, dictionary.Default())
	require.NoError(t, err)
	byCode := map[string]uuid.UUID{}
	for _, a := range accs {
		byCode[a.Code] = a.ID
	}
	taxes := tax.New(store, store, engine)
	sale, err := taxes.Create(ctx, ledger.Tax{Name: "Sales VAT", Rate: d(10), Type: ledger.TaxSale})
	require.NoError(t, err)
	purchase, err := taxes.Create(ctx, ledger.Tax{Name: "Input VAT", Rate: d(10), Type: ledger.TaxPurchase})
	require.NoError(t, err)
	return fixture{
		reports:  taxreport.New(store, store, engine),
		journal:  journal.New(store, store, engine),
		sale:     sale,
		purchase: purchase,
		acc:      byCode,
	}
}

// post books a taxed sale (credit revenue) or purchase (debit expense) of supply.
func (f fixture) post(t *testing.T, date string, tx ledger.Tax, supply int64) {
	t.Helper()
	vat := supply / 10
	id := tx.ID
	var lines []ledger.JournalLine
	if tx.Type == ledger.TaxSale {
		lines = []ledger.JournalLine{
			{AccountID: f.acc["1100"], Debit: d(supply + vat), Credit: decimal.Zero},
			{AccountID: f.acc["4100"], TaxID: &id, Debit: decimal.Zero, Credit: d(supply)},
			{AccountID: f.acc[dictionary.CodeVATPayable], Debit: decimal.Zero, Credit: d(vat)},
		}
	} else {
		lines = []ledger.JournalLine{
			{AccountID: f.acc["6100"], TaxID: &id, Debit: d(supply), Credit: decimal.Zero},
			{AccountID: f.acc[dictionary.CodeVATReceivable], Debit: d(vat), Credit: decimal.Zero},
			{AccountID: f.acc["2100"], Debit: decimal.Zero, Credit: d(supply + vat)},
		}
	}
	_, _, err := f.journal.Create(context.Background(), ledger.JournalEntry{Date: day(date), State: ledger.EntryPosted, Lines: lines}, "")
	require.NoError(t, err)
}

func TestCreate_ResolvesPeriod(t *testing.T) {
	f := setup(t)
	r, err := f.reports.Create(context.Background(), ledger.TaxReport{ReportType: ledger.ReportQuarterly, PeriodKey: "2025-Q2"})
	require.NoError(t, err)
	assert.Equal(t, "2025-q2", r.PeriodKey)
	assert.Equal(t, "Tax report 2025-q2", r.Name)
	assert.True(t, r.PeriodStart.Equal(day("2025-04-01")))
	assert.True(t, r.PeriodEnd.Equal(day("2025-06-30")))
	assert.Equal(t, ledger.ReportDraft, r.State)

	_, err = f.reports.Create(context.Background(), ledger.TaxReport{ReportType: ledger.ReportMonthly, PeriodKey: "2025-13"})
	assert.Equal(t, "invalid_period_key", posting.CodeOf(err))

	_, err = f.reports.Create(context.Background(), ledger.TaxReport{ReportType: ledger.ReportMonthly, PeriodKey: "2025-01", TaxIDs: []uuid.UUID{uuid.New()}})
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestGenerate_AggregatesPostedLines(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.post(t, "2025-01-15", f.sale, 1000000)
	f.post(t, "2025-02-10", f.sale, 500000)
	f.post(t, "2025-03-31", f.purchase, 400000)
	f.post(t, "2025-04-01", f.sale, 9000000) // next quarter

	r, err := f.reports.Create(ctx, ledger.TaxReport{ReportType: ledger.ReportQuarterly, PeriodKey: "2025-q1"})
	require.NoError(t, err)
	r, err = f.reports.Generate(ctx, r.ID, nil)
	require.NoError(t, err)

	assert.True(t, r.Totals.SaleVATAmount.Equal(d(150000)), r.Totals.SaleVATAmount.String())
	assert.True(t, r.Totals.PurchaseVATAmount.Equal(d(40000)))
	assert.True(t, r.Totals.DerivedVATPayable.Equal(d(110000)))
	assert.True(t, r.Totals.VATPayable.Equal(d(110000)))
	assert.Nil(t, r.Totals.ManualAdjustment)
	assert.NotNil(t, r.GeneratedAt)
}

func TestGenerate_ManualAdjustment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.post(t, "2025-01-15", f.sale, 1000000)
	r, err := f.reports.Create(ctx, ledger.TaxReport{ReportType: ledger.ReportMonthly, PeriodKey: "2025-01"})
	require.NoError(t, err)

	_, err = f.reports.Generate(ctx, r.ID, &ledger.ManualAdjustment{VATPayable: d(90000)})
	assert.Equal(t, "manual_override", posting.CodeOf(err))

	r, err = f.reports.Generate(ctx, r.ID, &ledger.ManualAdjustment{VATPayable: d(90000), Reason: "bad debt relief"})
	require.NoError(t, err)
	assert.True(t, r.Totals.DerivedVATPayable.Equal(d(100000)))
	assert.True(t, r.Totals.VATPayable.Equal(d(90000)))
	require.NotNil(t, r.Totals.ManualAdjustment)
	assert.Equal(t, "bad debt relief", r.Totals.ManualAdjustment.Reason)
}

func TestGenerate_RestrictedToSelectedTaxes(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.post(t, "2025-01-15", f.sale, 1000000)
	f.post(t, "2025-01-16", f.purchase, 200000)
	r, err := f.reports.Create(ctx, ledger.TaxReport{ReportType: ledger.ReportYearly, PeriodKey: "2025", TaxIDs: []uuid.UUID{f.purchase.ID}})
	require.NoError(t, err)
	r, err = f.reports.Generate(ctx, r.ID, nil)
	require.NoError(t, err)
	assert.True(t, r.Totals.SaleVATAmount.IsZero())
	assert.True(t, r.Totals.PurchaseVATAmount.Equal(d(20000)))
	assert.True(t, r.Totals.VATPayable.Equal(d(-20000)))
}

func TestLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r, err := f.reports.Create(ctx, ledger.TaxReport{ReportType: ledger.ReportHalfYearly, PeriodKey: "2025-h1"})
	require.NoError(t, err)

	_, err = f.reports.Submit(ctx, r.ID)
	assert.Equal(t, "invalid_state_transition", posting.CodeOf(err))

	confirmed, err := f.reports.Confirm(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReportConfirmed, confirmed.State)

	_, err = f.reports.Generate(ctx, r.ID, nil)
	assert.ErrorIs(t, err, errs.ErrImmutable)
	assert.ErrorIs(t, f.reports.Delete(ctx, r.ID), errs.ErrImmutable)
	confirmed.Notes = "edited"
	_, err = f.reports.Update(ctx, confirmed)
	assert.ErrorIs(t, err, errs.ErrImmutable)

	submitted, err := f.reports.Submit(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReportSubmitted, submitted.State)
	assert.NotNil(t, submitted.SubmittedAt)

	_, err = f.reports.Confirm(ctx, r.ID)
	assert.ErrorIs(t, err, posting.ErrReport)

	st := ledger.ReportSubmitted
	list, err := f.reports.List(ctx, &st)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdate_PeriodChangeClearsTotals(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.post(t, "2025-01-15", f.sale, 1000000)
	r, err := f.reports.Create(ctx, ledger.TaxReport{ReportType: ledger.ReportMonthly, PeriodKey: "2025-01"})
	require.NoError(t, err)
	r, err = f.reports.Generate(ctx, r.ID, nil)
	require.NoError(t, err)
	require.False(t, r.Totals.SaleVATAmount.IsZero())

	r.PeriodKey = "2025-02"
	r, err = f.reports.Update(ctx, r)
	require.NoError(t, err)
	assert.True(t, r.Totals.SaleVATAmount.IsZero())
	assert.Nil(t, r.GeneratedAt)
	assert.True(t, r.PeriodStart.Equal(day("2025-02-01")))

	require.NoError(t, f.reports.Delete(ctx, r.ID))
	_, err = f.reports.Get(ctx, r.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
