package posting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
)

type taxMap map[uuid.UUID]ledger.Tax

func (m taxMap) Tax(id uuid.UUID) (ledger.Tax, bool) { t, ok := m[id]; return t, ok }

func TestDecodeRule(t *testing.T) {
	debitID, creditID := uuid.New(), uuid.New()
	raw := `{"kind":"transfer","name":"Petty cash top-up","debit_account_id":"` + debitID.String() + `","credit_account_id":"` + creditID.String() + `","amount":"50000"}`

	r, err := DecodeRule([]byte(raw))
	require.NoError(t, err)
	tr, ok := r.(TransferRule)
	require.True(t, ok, "got %T", r)
	assert.Equal(t, RuleTransfer, tr.Kind())
	assert.Equal(t, debitID, tr.DebitAccountID)
	assert.True(t, tr.Amount.Equal(d("50000")))
}

func TestDecodeRuleRejects(t *testing.T) {
	cases := map[string]string{
		"unknown kind":  `{"kind":"payroll","name":"x"}`,
		"missing kind":  `{"name":"x"}`,
		"unknown field": `{"kind":"transfer","name":"x","colour":"red"}`,
		"missing name":  `{"kind":"transfer","amount":"1"}`,
		"bad date":      `{"kind":"transfer","name":"x","date":"31/01/2024"}`,
		"not json":      `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRule([]byte(raw))
			assert.Equal(t, "invalid_rule", CodeOf(err))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBuildTransferRule(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))
	accts, ids := chart(2)
	r, err := DecodeRule([]byte(`{"kind":"transfer","name":"Move","date":"2024-03-05","debit_account_id":"` + ids[0].String() + `","credit_account_id":"` + ids[1].String() + `","amount":"700"}`))
	require.NoError(t, err)

	entry, err := e.BuildRuleEntry(r, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 5), entry.Date)
	assert.Equal(t, ledger.EntryDraft, entry.State)
	assert.Equal(t, meta.SourceRule, entry.Metadata[meta.KeySource])
	assert.Equal(t, "transfer", entry.Metadata[meta.KeyRule])

	v, err := e.Validate(accts, nil, entry)
	require.NoError(t, err)
	assert.True(t, v.DebitTotal.Equal(d("700")))
}

func TestBuildTaxedSaleRule(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))
	accts, ids := chart(3)
	vat := taxOf(ledger.TaxSale, "10")
	taxes := taxMap{vat.ID: vat}

	r := TaxedSaleRule{ReceivableAccountID: ids[0], RevenueAccountID: ids[1], TaxPayableAccountID: ids[2], TaxID: vat.ID, SupplyAmount: d("1000000")}
	r.Name = "Invoice 42"
	entry, err := e.BuildRuleEntry(r, taxes, day(2024, 2, 1))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 3)
	assert.True(t, entry.Lines[0].Debit.Equal(d("1100000")))
	assert.True(t, entry.Lines[1].Credit.Equal(d("1000000")))
	require.NotNil(t, entry.Lines[1].TaxID)
	assert.Equal(t, vat.ID, *entry.Lines[1].TaxID)
	assert.True(t, entry.Lines[2].Credit.Equal(d("100000")))

	_, err = e.Validate(accts, nil, entry)
	require.NoError(t, err)
}

func TestBuildTaxedPurchaseRule(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))
	accts, ids := chart(3)
	vat := taxOf(ledger.TaxPurchase, "10")
	vat.Method = ledger.CalcInclusive

	r := TaxedPurchaseRule{ExpenseAccountID: ids[0], TaxReceivableAccountID: ids[1], PayableAccountID: ids[2], TaxID: vat.ID, SupplyAmount: d("110000")}
	r.Name = "Supplies"
	entry, err := e.BuildRuleEntry(r, taxMap{vat.ID: vat}, day(2024, 2, 1))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 3)
	assert.True(t, entry.Lines[0].Debit.Equal(d("100000")))
	assert.True(t, entry.Lines[1].Debit.Equal(d("10000")))
	assert.True(t, entry.Lines[2].Credit.Equal(d("110000")))
	_, err = e.Validate(accts, nil, entry)
	require.NoError(t, err)
}

func TestBuildRuleErrors(t *testing.T) {
	e := New(ledger.MustParseCurrency("KRW"))
	_, ids := chart(3)

	tr := TransferRule{DebitAccountID: ids[0], CreditAccountID: ids[1], Amount: d("0")}
	tr.Name = "zero"
	_, err := e.BuildRuleEntry(tr, nil, day(2024, 1, 1))
	assert.Equal(t, "invalid_rule", CodeOf(err))

	sale := TaxedSaleRule{ReceivableAccountID: ids[0], RevenueAccountID: ids[1], TaxPayableAccountID: ids[2], TaxID: uuid.New(), SupplyAmount: d("100")}
	sale.Name = "ghost tax"
	_, err = e.BuildRuleEntry(sale, taxMap{}, day(2024, 1, 1))
	assert.Equal(t, "invalid_rule", CodeOf(err))
}
