package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/httpapi"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/partner"
	"github.com/tinoosan/bookkeeper/internal/service/tax"
)

// devSeed adds a sales VAT, a purchase VAT and a demo customer when missing, and
// prints their ids for local experiments.
func devSeed(ctx context.Context, store httpapi.Store, engine *posting.Engine, w io.Writer, l *slog.Logger, backend string) error {
	taxes := tax.New(store, store, engine)
	partners := partner.New(store, store)

	existingTaxes, err := taxes.List(ctx, tax.Filter{})
	if err != nil {
		return err
	}
	taxByCode := map[string]ledger.Tax{}
	for _, t := range existingTaxes {
		taxByCode[t.Code] = t
	}
	ids := map[string]string{}
	for _, want := range []ledger.Tax{
		{Code: "VAT-S10", Name: "VAT 10% (sales)", Rate: decimal.NewFromInt(10), Type: ledger.TaxSale},
		{Code: "VAT-P10", Name: "VAT 10% (purchases)", Rate: decimal.NewFromInt(10), Type: ledger.TaxPurchase},
	} {
		t, ok := taxByCode[want.Code]
		if !ok {
			if t, err = taxes.Create(ctx, want); err != nil {
				return err
			}
		}
		ids[t.Code] = t.ID.String()
	}

	ps, err := partners.List(ctx, nil)
	if err != nil {
		return err
	}
	var demo *ledger.Partner
	for i := range ps {
		if ps[i].Code == "demo_customer" {
			demo = &ps[i]
		}
	}
	if demo == nil {
		p, err := partners.Create(ctx, ledger.Partner{Name: "Demo Customer", Type: ledger.PartnerCustomer})
		if err != nil {
			return err
		}
		demo = &p
	}
	ids[demo.Code] = demo.ID.String()

	l.Info("DEV seed ("+backend+")", "ids", ids)
	fmt.Fprintln(w, "==================== DEV SEED ====================")
	for _, k := range []string{"VAT-S10", "VAT-P10", "demo_customer"} {
		fmt.Fprintf(w, "%s: %s\n", k, ids[k])
	}
	fmt.Fprintln(w, "==================================================")
	return nil
}
