package partner_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/service/partner"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
)

func TestCreate_Defaults(t *testing.T) {
	store := memory.New()
	svc := partner.New(store, store)
	ctx := context.Background()

	p, err := svc.Create(ctx, ledger.Partner{Name: "  Acme Trading Co. ", Email: "billing@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "acme_trading_co", p.Code)
	assert.Equal(t, "Acme Trading Co.", p.Name)
	assert.Equal(t, ledger.PartnerBoth, p.Type)
	assert.True(t, p.Active)
	assert.NotEqual(t, uuid.Nil, p.ID)

	_, err = svc.Create(ctx, ledger.Partner{Name: "Other", Code: "ACME_TRADING_CO"})
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestCreate_Validation(t *testing.T) {
	store := memory.New()
	svc := partner.New(store, store)
	ctx := context.Background()
	cases := map[string]ledger.Partner{
		"blank name":     {Name: "   "},
		"no latin chars": {Name: "주식회사"},
		"bad type":       {Name: "Vendor", Type: "employee"},
		"bad email":      {Name: "Vendor", Email: "not-an-email"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, p)
			assert.ErrorIs(t, err, errs.ErrInvalid)
		})
	}
	p, err := svc.Create(ctx, ledger.Partner{Name: "주식회사", Code: "hanil"})
	require.NoError(t, err)
	assert.Equal(t, "hanil", p.Code)
}

func TestList_TypeFilter(t *testing.T) {
	store := memory.New()
	svc := partner.New(store, store)
	ctx := context.Background()
	for _, p := range []ledger.Partner{
		{Name: "Customer A", Type: ledger.PartnerCustomer},
		{Name: "Supplier B", Type: ledger.PartnerSupplier},
		{Name: "Both C", Type: ledger.PartnerBoth},
	} {
		_, err := svc.Create(ctx, p)
		require.NoError(t, err)
	}
	cust := ledger.PartnerCustomer
	got, err := svc.List(ctx, &cust)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "both_c", got[0].Code)
	assert.Equal(t, "customer_a", got[1].Code)

	sup := ledger.PartnerSupplier
	got, err = svc.List(ctx, &sup)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	all, err := svc.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestUpdateAndDeactivate(t *testing.T) {
	store := memory.New()
	svc := partner.New(store, store)
	ctx := context.Background()
	a, err := svc.Create(ctx, ledger.Partner{Name: "Alpha"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, ledger.Partner{Name: "Beta"})
	require.NoError(t, err)

	b.Code = "alpha"
	_, err = svc.Update(ctx, b)
	assert.ErrorIs(t, err, errs.ErrConflict)

	a.Phone = "+82-2-555-0100"
	a, err = svc.Update(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "+82-2-555-0100", a.Phone)

	require.NoError(t, svc.Deactivate(ctx, a.ID))
	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = svc.Update(ctx, ledger.Partner{ID: uuid.New(), Name: "Ghost"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
