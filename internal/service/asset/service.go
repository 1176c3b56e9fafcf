// Package asset manages fixed assets and runs depreciation. Each depreciation run
// stores the posting and the asset's new book value together under an optimistic
// version check, retrying from a fresh snapshot on conflict.
package asset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/bookkeeper/internal/dictionary"
	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/registry"
	"github.com/tinoosan/bookkeeper/internal/service/journal"
	"github.com/tinoosan/bookkeeper/internal/slug"
)

type Repo interface {
	ListAssets(ctx context.Context) ([]ledger.Asset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (ledger.Asset, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
}

type Writer interface {
	NextSequence(ctx context.Context, name string) (int64, error)
	CreateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error)
	// UpdateAsset stores a when the stored version equals a.Version and bumps it;
	// otherwise it fails with errs.ErrVersionConflict.
	UpdateAsset(ctx context.Context, a ledger.Asset) (ledger.Asset, error)
	// ApplyDepreciation stores the entry and the asset update atomically, with the
	// same version check as UpdateAsset.
	ApplyDepreciation(ctx context.Context, a ledger.Asset, entry ledger.JournalEntry) (ledger.Asset, ledger.JournalEntry, error)
}

// Options tunes batch depreciation.
type Options struct {
	// Workers bounds how many assets are depreciated concurrently.
	Workers int
	// Retries bounds attempts per asset when the version check fails.
	Retries int
}

// DepreciateRequest selects assets and accounts for a depreciation run.
// Empty AssetIDs means every active asset. Nil accounts default to the chart's
// depreciation expense and accumulated depreciation accounts.
type DepreciateRequest struct {
	AssetIDs         []uuid.UUID
	Date             time.Time
	ExpenseAccountID *uuid.UUID
	ContraAccountID  *uuid.UUID
}

// Outcome reports one asset's result. Exactly one of Err and Entry is set.
type Outcome struct {
	AssetID uuid.UUID
	Amount  decimal.Decimal
	Entry   *ledger.JournalEntry
	Asset   *ledger.Asset
	Err     error
}

// Input is an asset as a caller submits it. A nil CurrentValue means the purchase
// value on Create and the stored book value on Update; an explicit zero is kept.
// Asset.CurrentValue is ignored.
type Input struct {
	Asset        ledger.Asset
	CurrentValue *decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, in Input) (ledger.Asset, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Asset, error)
	List(ctx context.Context) ([]ledger.Asset, error)
	Update(ctx context.Context, in Input) (ledger.Asset, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Depreciate(ctx context.Context, req DepreciateRequest) ([]Outcome, error)
	Schedule(ctx context.Context, id uuid.UUID, from time.Time) ([]posting.ScheduleRow, error)
}

type service struct {
	repo   Repo
	writer Writer
	engine *posting.Engine
	opts   Options
	now    func() time.Time
}

func New(repo Repo, writer Writer, engine *posting.Engine, opts Options) Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &service{repo: repo, writer: writer, engine: engine, opts: opts, now: time.Now}
}

func invalid(msg string) error { return fmt.Errorf("%w: %s", errs.ErrInvalid, msg) }

func (s *service) validate(ctx context.Context, a *ledger.Asset) error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return invalid("name is required")
	}
	if a.Code == "" {
		a.Code = slug.Slugify(a.Name)
	}
	a.Code = slug.Normalize(a.Code)
	if !slug.IsCode(a.Code) {
		return invalid("code is required when the name has no latin letters or digits")
	}
	cur := s.engine.Currency()
	switch {
	case a.UsefulLife < 1:
		return invalid("useful_life must be at least 1")
	case a.PurchaseValue.IsNegative():
		return invalid("purchase_value must not be negative")
	case a.ResidualValue.IsNegative() || a.ResidualValue.GreaterThan(a.PurchaseValue):
		return invalid("residual_value must be between 0 and purchase_value")
	case a.CurrentValue.IsNegative() || a.CurrentValue.GreaterThan(a.PurchaseValue):
		return invalid("current_value must be between 0 and purchase_value")
	case !cur.Fits(a.PurchaseValue) || !cur.Fits(a.ResidualValue) || !cur.Fits(a.CurrentValue):
		return invalid("amount exceeds " + cur.Code + " precision")
	case a.PurchaseDate.IsZero():
		return invalid("purchase_date is required")
	}
	all, err := s.repo.ListAssets(ctx)
	if err != nil {
		return err
	}
	for _, o := range all {
		if o.Code == a.Code && o.ID != a.ID {
			return fmt.Errorf("%w: asset code %s already exists", errs.ErrConflict, a.Code)
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, in Input) (ledger.Asset, error) {
	a := in.Asset
	a.ID = uuid.New()
	a.LastDepreciatedOn = nil
	a.CurrentValue = a.PurchaseValue
	if in.CurrentValue != nil {
		a.CurrentValue = *in.CurrentValue
	}
	if err := s.validate(ctx, &a); err != nil {
		return ledger.Asset{}, err
	}
	a.PurchaseDate = ledger.DateOf(a.PurchaseDate)
	a.Active = true
	a.Version = 1
	return s.writer.CreateAsset(ctx, a)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Asset, error) {
	return s.repo.GetAsset(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Asset, error) {
	all, err := s.repo.ListAssets(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	return all, nil
}

// Update edits an asset at the caller's version. Valuation fields are frozen once
// the asset has been depreciated.
func (s *service) Update(ctx context.Context, in Input) (ledger.Asset, error) {
	a := in.Asset
	cur, err := s.repo.GetAsset(ctx, a.ID)
	if err != nil {
		return ledger.Asset{}, err
	}
	a.CurrentValue = cur.CurrentValue
	if in.CurrentValue != nil {
		a.CurrentValue = *in.CurrentValue
	}
	if a.Version == 0 {
		a.Version = cur.Version
	}
	if cur.LastDepreciatedOn != nil {
		if !a.PurchaseValue.Equal(cur.PurchaseValue) || !a.ResidualValue.Equal(cur.ResidualValue) ||
			!a.CurrentValue.Equal(cur.CurrentValue) || a.Method != cur.Method || a.UsefulLife != cur.UsefulLife ||
			!ledger.DateOf(a.PurchaseDate).Equal(cur.PurchaseDate) {
			return ledger.Asset{}, fmt.Errorf("%w: valuation of a depreciated asset cannot change", errs.ErrImmutable)
		}
	}
	if err := s.validate(ctx, &a); err != nil {
		return ledger.Asset{}, err
	}
	a.PurchaseDate = ledger.DateOf(a.PurchaseDate)
	a.LastDepreciatedOn = cur.LastDepreciatedOn
	a.Active = cur.Active
	return s.writer.UpdateAsset(ctx, a)
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	for attempt := 0; attempt < s.opts.Retries; attempt++ {
		cur, err := s.repo.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		if !cur.Active {
			return nil
		}
		cur.Active = false
		_, err = s.writer.UpdateAsset(ctx, cur)
		if !errors.Is(err, errs.ErrVersionConflict) {
			return err
		}
	}
	return errs.ErrVersionConflict
}

func (s *service) Schedule(ctx context.Context, id uuid.UUID, from time.Time) ([]posting.ScheduleRow, error) {
	a, err := s.repo.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if from.IsZero() {
		from = s.now()
	}
	if next, ok := NextRun(a); ok && from.Before(next) {
		from = next
	}
	// a declining-balance schedule converges geometrically; cap it generously.
	return s.engine.Schedule(a, from, a.UsefulLife*4+1)
}

func (s *service) resolveAccounts(reg *registry.Registry, req DepreciateRequest) (posting.DepreciationAccounts, error) {
	var accts posting.DepreciationAccounts
	if req.ExpenseAccountID != nil {
		accts.ExpenseAccountID = *req.ExpenseAccountID
	} else if a, ok := reg.ByCode(dictionary.CodeDepreciationExpense); ok {
		accts.ExpenseAccountID = a.ID
	} else {
		return accts, invalid("no depreciation expense account " + dictionary.CodeDepreciationExpense + " in the chart")
	}
	if req.ContraAccountID != nil {
		accts.ContraAccountID = *req.ContraAccountID
	} else if a, ok := reg.ByCode(dictionary.CodeAccumulatedDepreciation); ok {
		accts.ContraAccountID = a.ID
	} else {
		return accts, invalid("no accumulated depreciation account " + dictionary.CodeAccumulatedDepreciation + " in the chart")
	}
	return accts, nil
}

// Depreciate runs one period for each selected asset in parallel. The returned
// error is reserved for failures affecting the whole batch; per-asset failures are
// reported in their Outcome.
func (s *service) Depreciate(ctx context.Context, req DepreciateRequest) ([]Outcome, error) {
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(accs)
	if err != nil {
		return nil, err
	}
	accts, err := s.resolveAccounts(reg, req)
	if err != nil {
		return nil, err
	}
	if req.Date.IsZero() {
		req.Date = s.now()
	}
	date := ledger.DateOf(req.Date)

	ids := req.AssetIDs
	if len(ids) == 0 {
		all, err := s.repo.ListAssets(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range all {
			if a.Active {
				ids = append(ids, a.ID)
			}
		}
	}

	out := make([]Outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = s.depreciateOne(gctx, reg, id, date, accts)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// NextRun reports the earliest date the asset may be depreciated again. A run
// books a full year, so the next one is due a year after the last.
func NextRun(a ledger.Asset) (time.Time, bool) {
	if a.LastDepreciatedOn == nil {
		return time.Time{}, false
	}
	return a.LastDepreciatedOn.AddDate(1, 0, 0), true
}

func (s *service) depreciateOne(ctx context.Context, reg *registry.Registry, id uuid.UUID, date time.Time, accts posting.DepreciationAccounts) Outcome {
	res := Outcome{AssetID: id}
	for attempt := 0; attempt < s.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		a, err := s.repo.GetAsset(ctx, id)
		if err != nil {
			res.Err = err
			return res
		}
		if !a.Active {
			res.Err = invalid("asset " + a.Code + " is inactive")
			return res
		}
		if next, ok := NextRun(a); ok && date.Before(next) {
			res.Err = fmt.Errorf("%w: asset %s was depreciated on %s; the next period starts %s",
				errs.ErrConflict, a.Code, a.LastDepreciatedOn.Format(time.DateOnly), next.Format(time.DateOnly))
			return res
		}
		p, err := s.engine.Depreciate(a, date, accts)
		if err != nil {
			res.Err = err
			return res
		}
		if _, err := s.engine.Validate(reg, nil, p.Entry); err != nil {
			res.Err = err
			return res
		}
		seq, err := s.writer.NextSequence(ctx, journal.SeqJournalEntry)
		if err != nil {
			res.Err = err
			return res
		}
		entry := p.Entry
		entry.ID = uuid.New()
		entry.Ref = fmt.Sprintf("%06d", seq)
		entry.CreatedAt = s.now().UTC()
		for i := range entry.Lines {
			entry.Lines[i].ID = uuid.New()
		}
		updated, stored, err := s.writer.ApplyDepreciation(ctx, p.Asset, entry)
		if errors.Is(err, errs.ErrVersionConflict) {
			continue
		}
		if err != nil {
			res.Err = err
			return res
		}
		res.Amount = p.Amount
		res.Entry = &stored
		res.Asset = &updated
		return res
	}
	res.Err = fmt.Errorf("asset %s: %w after %d attempts", id, errs.ErrVersionConflict, s.opts.Retries)
	return res
}
