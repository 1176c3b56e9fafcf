package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
)

// DepreciationAccounts names the two accounts a depreciation posting touches.
type DepreciationAccounts struct {
	ExpenseAccountID uuid.UUID
	ContraAccountID  uuid.UUID
}

// DepreciationPosting is the outcome of one depreciation run for one asset.
type DepreciationPosting struct {
	AssetID uuid.UUID
	Amount  decimal.Decimal
	// Entry is a posted two-line entry: debit expense, credit contra.
	Entry ledger.JournalEntry
	// Asset is the input snapshot with CurrentValue and LastDepreciatedOn advanced.
	// Version is left untouched; the store bumps it.
	Asset ledger.Asset
}

// DepreciationResult is one asset's outcome within a batch.
type DepreciationResult struct {
	AssetID uuid.UUID
	Posting *DepreciationPosting
	Err     error
}

var two = decimal.NewFromInt(2)

// projectionAccount stands in for real accounts when only amounts are needed.
var projectionAccount = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Depreciate computes one period of depreciation for asset as of asOf.
// The amount never takes current value below the residual value.
func (e *Engine) Depreciate(asset ledger.Asset, asOf time.Time, accts DepreciationAccounts) (DepreciationPosting, error) {
	if err := checkAsset(asset, asOf); err != nil {
		return DepreciationPosting{}, err
	}
	if accts.ExpenseAccountID == uuid.Nil || accts.ContraAccountID == uuid.Nil {
		return DepreciationPosting{}, &InvalidAssetError{AssetID: asset.ID, Reason: "depreciation accounts are not configured"}
	}
	if asset.Method != ledger.MethodStraightLine && asset.Method != ledger.MethodDecliningBalance {
		return DepreciationPosting{}, &UnsupportedMethodError{AssetID: asset.ID, Method: string(asset.Method)}
	}
	floor := asset.ResidualValue
	remaining := asset.CurrentValue.Sub(floor)
	if !remaining.IsPositive() {
		return DepreciationPosting{}, &AlreadyDepreciatedError{AssetID: asset.ID}
	}

	amount := e.periodicAmount(asset)
	// Rounding can leave a tail smaller than one minor unit per period; post it whole.
	if amount.GreaterThan(remaining) || !amount.IsPositive() {
		amount = remaining
	}

	day := ledger.DateOf(asOf)
	md := meta.New(map[string]string{
		meta.KeySource:  meta.SourceDepreciation,
		meta.KeyAssetID: asset.ID.String(),
		meta.KeyMethod:  string(asset.Method),
	})
	memo := fmt.Sprintf("Depreciation %s", asset.Name)
	entry := ledger.JournalEntry{
		Name:  memo,
		Date:  day,
		State: ledger.EntryPosted,
		Memo:  memo,
		Lines: []ledger.JournalLine{
			{AccountID: accts.ExpenseAccountID, Memo: memo, Debit: amount, Credit: decimal.Zero},
			{AccountID: accts.ContraAccountID, Memo: memo, Debit: decimal.Zero, Credit: amount},
		},
		AmountTotal: amount,
		Metadata:    md,
	}

	updated := asset
	updated.CurrentValue = asset.CurrentValue.Sub(amount)
	updated.LastDepreciatedOn = &day
	return DepreciationPosting{AssetID: asset.ID, Amount: amount, Entry: entry, Asset: updated}, nil
}

func (e *Engine) periodicAmount(asset ledger.Asset) decimal.Decimal {
	life := decimal.NewFromInt(int64(asset.UsefulLife))
	switch asset.Method {
	case ledger.MethodDecliningBalance:
		return asset.CurrentValue.Mul(two).DivRound(life, e.currency.Scale)
	default:
		return asset.PurchaseValue.Sub(asset.ResidualValue).DivRound(life, e.currency.Scale)
	}
}

func checkAsset(asset ledger.Asset, asOf time.Time) error {
	invalid := func(reason string) error { return &InvalidAssetError{AssetID: asset.ID, Reason: reason} }
	switch {
	case asset.UsefulLife < 1:
		return invalid("useful life must be at least 1")
	case asset.PurchaseValue.IsNegative():
		return invalid("purchase value must not be negative")
	case asset.CurrentValue.IsNegative():
		return invalid("current value must not be negative")
	case asset.ResidualValue.IsNegative():
		return invalid("residual value must not be negative")
	case asset.ResidualValue.GreaterThan(asset.PurchaseValue):
		return invalid("residual value exceeds purchase value")
	case asset.CurrentValue.GreaterThan(asset.PurchaseValue):
		return invalid("current value exceeds purchase value")
	case !asset.PurchaseDate.IsZero() && ledger.DateOf(asOf).Before(ledger.DateOf(asset.PurchaseDate)):
		return invalid("as-of date precedes purchase date")
	}
	return nil
}

// DepreciateBatch applies Depreciate to every asset independently, at most workers at
// a time. results[i] always corresponds to assets[i]; one failure never stops the rest.
func (e *Engine) DepreciateBatch(ctx context.Context, assets []ledger.Asset, asOf time.Time, accts DepreciationAccounts, workers int) []DepreciationResult {
	results := make([]DepreciationResult, len(assets))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range assets {
		g.Go(func() error {
			a := assets[i]
			results[i].AssetID = a.ID
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			p, err := e.Depreciate(a, asOf, accts)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Posting = &p
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ScheduleRow is one projected period of a depreciation schedule.
type ScheduleRow struct {
	Period       int
	Date         time.Time
	Amount       decimal.Decimal
	CurrentValue decimal.Decimal
}

// Schedule projects yearly depreciation from the asset's current state until it
// reaches its residual value or maxPeriods rows are produced.
func (e *Engine) Schedule(asset ledger.Asset, from time.Time, maxPeriods int) ([]ScheduleRow, error) {
	accts := DepreciationAccounts{ExpenseAccountID: projectionAccount, ContraAccountID: projectionAccount}
	var rows []ScheduleRow
	date := from
	for period := 1; period <= maxPeriods; period++ {
		p, err := e.Depreciate(asset, date, accts)
		if err != nil {
			var done *AlreadyDepreciatedError
			if errors.As(err, &done) {
				break
			}
			return nil, err
		}
		rows = append(rows, ScheduleRow{Period: period, Date: ledger.DateOf(date), Amount: p.Amount, CurrentValue: p.Asset.CurrentValue})
		asset = p.Asset
		date = date.AddDate(1, 0, 0)
	}
	return rows, nil
}
