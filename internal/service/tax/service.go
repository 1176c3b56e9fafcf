// Package tax manages configured tax rates and exposes the engine's calculator.
package tax

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
)

type Repo interface {
	ListTaxes(ctx context.Context) ([]ledger.Tax, error)
	GetTax(ctx context.Context, id uuid.UUID) (ledger.Tax, error)
}

type Writer interface {
	NextSequence(ctx context.Context, name string) (int64, error)
	CreateTax(ctx context.Context, t ledger.Tax) (ledger.Tax, error)
	UpdateTax(ctx context.Context, t ledger.Tax) (ledger.Tax, error)
}

// Filter narrows List. Zero value lists everything.
type Filter struct {
	Type       *ledger.TaxType
	Category   *ledger.TaxCategory
	ActiveOnly bool
}

type Service interface {
	Create(ctx context.Context, t ledger.Tax) (ledger.Tax, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Tax, error)
	List(ctx context.Context, f Filter) ([]ledger.Tax, error)
	Update(ctx context.Context, t ledger.Tax) (ledger.Tax, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Calculate(supply, rate decimal.Decimal) (posting.TaxCalculation, error)
	CalculateFor(ctx context.Context, taxID uuid.UUID, amount decimal.Decimal) (posting.TaxCalculation, error)
}

type service struct {
	repo   Repo
	writer Writer
	engine *posting.Engine
	now    func() time.Time
}

func New(repo Repo, writer Writer, engine *posting.Engine) Service {
	return &service{repo: repo, writer: writer, engine: engine, now: time.Now}
}

func invalid(msg string) error { return fmt.Errorf("%w: %s", errs.ErrInvalid, msg) }

func validate(t *ledger.Tax) error {
	t.Name = strings.TrimSpace(t.Name)
	t.Code = strings.ToUpper(strings.TrimSpace(t.Code))
	if t.Name == "" {
		return invalid("name is required")
	}
	if t.Type == "" {
		t.Type = ledger.TaxSale
	}
	if t.Category == "" {
		t.Category = ledger.TaxCategoryVAT
	}
	if t.Method == "" {
		t.Method = ledger.CalcExclusive
	}
	switch {
	case !t.Type.Valid():
		return invalid("type must be sale, purchase or both")
	case !t.Category.Valid():
		return invalid("category must be vat, withholding or other")
	case !t.Method.Valid():
		return invalid("calculation_method must be exclusive or inclusive")
	case t.Rate.IsNegative() || t.Rate.GreaterThan(decimal.NewFromInt(100)):
		return invalid("rate must be between 0 and 100")
	case t.EffectiveDate != nil && t.ExpiryDate != nil && t.ExpiryDate.Before(*t.EffectiveDate):
		return invalid("expiry_date precedes effective_date")
	}
	return nil
}

func (s *service) codeTaken(ctx context.Context, t ledger.Tax) error {
	all, err := s.repo.ListTaxes(ctx)
	if err != nil {
		return err
	}
	for _, o := range all {
		if o.Code == t.Code && o.ID != t.ID {
			return fmt.Errorf("%w: tax code %s already exists", errs.ErrConflict, t.Code)
		}
	}
	return nil
}

// Create stores a new tax. Without a code one is generated as TAX{year}{seq:06d}
// from a per-year sequence.
func (s *service) Create(ctx context.Context, t ledger.Tax) (ledger.Tax, error) {
	if err := validate(&t); err != nil {
		return ledger.Tax{}, err
	}
	now := s.now().UTC()
	if t.Code == "" {
		year := now.Year()
		seq, err := s.writer.NextSequence(ctx, fmt.Sprintf("tax_%d", year))
		if err != nil {
			return ledger.Tax{}, err
		}
		t.Code = fmt.Sprintf("TAX%d%06d", year, seq)
	}
	t.ID = uuid.New()
	if err := s.codeTaken(ctx, t); err != nil {
		return ledger.Tax{}, err
	}
	t.Active = true
	t.CreatedAt, t.UpdatedAt = now, now
	return s.writer.CreateTax(ctx, t)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Tax, error) {
	return s.repo.GetTax(ctx, id)
}

func (s *service) List(ctx context.Context, f Filter) ([]ledger.Tax, error) {
	all, err := s.repo.ListTaxes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Tax, 0, len(all))
	for _, t := range all {
		if f.ActiveOnly && !t.Active {
			continue
		}
		if f.Type != nil && t.Type != *f.Type && t.Type != ledger.TaxBoth {
			continue
		}
		if f.Category != nil && t.Category != *f.Category {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *service) Update(ctx context.Context, t ledger.Tax) (ledger.Tax, error) {
	cur, err := s.repo.GetTax(ctx, t.ID)
	if err != nil {
		return ledger.Tax{}, err
	}
	if t.Code == "" {
		t.Code = cur.Code
	}
	if err := validate(&t); err != nil {
		return ledger.Tax{}, err
	}
	if err := s.codeTaken(ctx, t); err != nil {
		return ledger.Tax{}, err
	}
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = s.now().UTC()
	return s.writer.UpdateTax(ctx, t)
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	cur, err := s.repo.GetTax(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Active {
		return nil
	}
	cur.Active = false
	cur.UpdatedAt = s.now().UTC()
	_, err = s.writer.UpdateTax(ctx, cur)
	return err
}

func (s *service) Calculate(supply, rate decimal.Decimal) (posting.TaxCalculation, error) {
	return s.engine.Calculate(supply, rate)
}

// CalculateFor applies a configured tax, honoring its method and exemption.
func (s *service) CalculateFor(ctx context.Context, taxID uuid.UUID, amount decimal.Decimal) (posting.TaxCalculation, error) {
	t, err := s.repo.GetTax(ctx, taxID)
	if err != nil {
		return posting.TaxCalculation{}, err
	}
	return s.engine.ComputeFor(t, amount)
}
