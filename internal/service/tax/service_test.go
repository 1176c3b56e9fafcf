package tax_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/tax"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
)

func newService() tax.Service {
	store := memory.New()
	return tax.New(store, store, posting.New(ledger.MustParseCurrency("KRW")))
}

func TestCreate_GeneratesYearlyCodes(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	year := time.Now().UTC().Year()

	first, err := svc.Create(ctx, ledger.Tax{Name: "VAT 10%", Rate: decimal.NewFromInt(10)})
	require.NoError(t, err)
	second, err := svc.Create(ctx, ledger.Tax{Name: "Zero rated", Rate: decimal.Zero})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("TAX%d000001", year), first.Code)
	assert.Equal(t, fmt.Sprintf("TAX%d000002", year), second.Code)
	assert.Equal(t, ledger.TaxSale, first.Type)
	assert.Equal(t, ledger.TaxCategoryVAT, first.Category)
	assert.Equal(t, ledger.CalcExclusive, first.Method)
	assert.True(t, first.Active)

	_, err = svc.Create(ctx, ledger.Tax{Name: "dup", Code: first.Code, Rate: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestCreate_Validation(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	eff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	exp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for name, tx := range map[string]ledger.Tax{
		"no name":       {Rate: decimal.NewFromInt(10)},
		"rate over 100": {Name: "x", Rate: decimal.NewFromInt(101)},
		"negative rate": {Name: "x", Rate: decimal.NewFromInt(-1)},
		"bad type":      {Name: "x", Rate: decimal.NewFromInt(1), Type: "import"},
		"window":        {Name: "x", Rate: decimal.NewFromInt(1), EffectiveDate: &eff, ExpiryDate: &exp},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, tx)
			assert.ErrorIs(t, err, errs.ErrInvalid)
		})
	}
}

func TestList_Filters(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	sale, _ := svc.Create(ctx, ledger.Tax{Name: "Sale VAT", Rate: decimal.NewFromInt(10), Type: ledger.TaxSale})
	_, _ = svc.Create(ctx, ledger.Tax{Name: "Purchase VAT", Rate: decimal.NewFromInt(10), Type: ledger.TaxPurchase})
	_, _ = svc.Create(ctx, ledger.Tax{Name: "Any", Rate: decimal.NewFromInt(5), Type: ledger.TaxBoth})
	_, _ = svc.Create(ctx, ledger.Tax{Name: "WHT", Rate: decimal.NewFromInt(3), Type: ledger.TaxPurchase, Category: ledger.TaxCategoryWithholding})

	st := ledger.TaxSale
	list, err := svc.List(ctx, tax.Filter{Type: &st})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	wht := ledger.TaxCategoryWithholding
	list, _ = svc.List(ctx, tax.Filter{Category: &wht})
	assert.Len(t, list, 1)

	require.NoError(t, svc.Deactivate(ctx, sale.ID))
	list, _ = svc.List(ctx, tax.Filter{ActiveOnly: true})
	assert.Len(t, list, 3)
	all, _ := svc.List(ctx, tax.Filter{})
	assert.Len(t, all, 4)
}

func TestCalculate(t *testing.T) {
	svc := newService()
	calc, err := svc.Calculate(decimal.NewFromInt(10005), decimal.NewFromInt(10))
	require.NoError(t, err)
	// 1000.5 rounds half away from zero in whole won
	assert.True(t, calc.TaxAmount.Equal(decimal.NewFromInt(1001)))
	assert.True(t, calc.TotalAmount.Equal(decimal.NewFromInt(11006)))

	_, err = svc.Calculate(decimal.NewFromInt(100), decimal.NewFromInt(150))
	assert.Equal(t, "invalid_rate", posting.CodeOf(err))
}

func TestCalculateFor_InclusiveAndExempt(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	incl, err := svc.Create(ctx, ledger.Tax{Name: "Inclusive VAT", Rate: decimal.NewFromInt(10), Method: ledger.CalcInclusive})
	require.NoError(t, err)
	calc, err := svc.CalculateFor(ctx, incl.ID, decimal.NewFromInt(11000))
	require.NoError(t, err)
	assert.True(t, calc.TaxAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, calc.SupplyAmount.Equal(decimal.NewFromInt(10000)))

	exempt, err := svc.Create(ctx, ledger.Tax{Name: "Exempt", Rate: decimal.NewFromInt(10), Exempt: true})
	require.NoError(t, err)
	calc, err = svc.CalculateFor(ctx, exempt.ID, decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.True(t, calc.TaxAmount.IsZero())
	assert.True(t, calc.TotalAmount.Equal(decimal.NewFromInt(5000)))
}
