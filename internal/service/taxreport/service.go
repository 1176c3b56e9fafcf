// Package taxreport drives tax reports through aggregation and their
// draft -> confirmed -> submitted lifecycle.
package taxreport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
)

type Repo interface {
	posting.LineSource
	ListTaxReports(ctx context.Context) ([]ledger.TaxReport, error)
	GetTaxReport(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error)
	ListTaxes(ctx context.Context) ([]ledger.Tax, error)
}

type Writer interface {
	CreateTaxReport(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error)
	UpdateTaxReport(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error)
	DeleteTaxReport(ctx context.Context, id uuid.UUID) error
}

type Service interface {
	Create(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error)
	List(ctx context.Context, state *ledger.ReportState) ([]ledger.TaxReport, error)
	Update(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Generate aggregates the report's period. adj, when set, overrides VAT payable.
	Generate(ctx context.Context, id uuid.UUID, adj *ledger.ManualAdjustment) (ledger.TaxReport, error)
	Confirm(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error)
	Submit(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error)
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

// prepare validates the period and tax selection and fills the period range.
func (s *service) prepare(ctx context.Context, r *ledger.TaxReport) error {
	r.PeriodKey = strings.ToLower(strings.TrimSpace(r.PeriodKey))
	p, err := posting.ResolvePeriod(posting.PeriodDescriptor{ReportType: r.ReportType, Key: r.PeriodKey})
	if err != nil {
		return err
	}
	r.PeriodStart, r.PeriodEnd = p.Start, p.End
	if len(r.TaxIDs) > 0 {
		taxes, err := s.repo.ListTaxes(ctx)
		if err != nil {
			return err
		}
		known := make(map[uuid.UUID]bool, len(taxes))
		for _, t := range taxes {
			known[t.ID] = true
		}
		for _, id := range r.TaxIDs {
			if !known[id] {
				return fmt.Errorf("%w: unknown tax %s", errs.ErrInvalid, id)
			}
		}
	}
	if r.Name = strings.TrimSpace(r.Name); r.Name == "" {
		r.Name = "Tax report " + r.PeriodKey
	}
	return nil
}

func (s *service) Create(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	if err := s.prepare(ctx, &r); err != nil {
		return ledger.TaxReport{}, err
	}
	r.ID = uuid.New()
	r.State = ledger.ReportDraft
	r.Totals = ledger.TaxReportTotals{}
	r.GeneratedAt, r.SubmittedAt = nil, nil
	r.CreatedAt = s.now().UTC()
	return s.writer.CreateTaxReport(ctx, r)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error) {
	return s.repo.GetTaxReport(ctx, id)
}

func (s *service) List(ctx context.Context, state *ledger.ReportState) ([]ledger.TaxReport, error) {
	all, err := s.repo.ListTaxReports(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.TaxReport, 0, len(all))
	for _, r := range all {
		if state == nil || r.State == *state {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.After(out[j].PeriodStart)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *service) draft(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error) {
	cur, err := s.repo.GetTaxReport(ctx, id)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	if cur.State != ledger.ReportDraft {
		return ledger.TaxReport{}, fmt.Errorf("%w: tax report is %s", errs.ErrImmutable, cur.State)
	}
	return cur, nil
}

// Update edits the header of a draft report. Changing the period clears its totals.
func (s *service) Update(ctx context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	cur, err := s.draft(ctx, r.ID)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	if err := s.prepare(ctx, &r); err != nil {
		return ledger.TaxReport{}, err
	}
	r.State, r.CreatedAt = cur.State, cur.CreatedAt
	r.Totals, r.GeneratedAt = cur.Totals, cur.GeneratedAt
	if r.ReportType != cur.ReportType || r.PeriodKey != cur.PeriodKey || !sameIDs(r.TaxIDs, cur.TaxIDs) {
		r.Totals, r.GeneratedAt = ledger.TaxReportTotals{}, nil
	}
	return s.writer.UpdateTaxReport(ctx, r)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.draft(ctx, id); err != nil {
		return err
	}
	return s.writer.DeleteTaxReport(ctx, id)
}

func (s *service) Generate(ctx context.Context, id uuid.UUID, adj *ledger.ManualAdjustment) (ledger.TaxReport, error) {
	cur, err := s.draft(ctx, id)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	taxes, err := s.repo.ListTaxes(ctx)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	selected := taxes
	if len(cur.TaxIDs) > 0 {
		want := make(map[uuid.UUID]bool, len(cur.TaxIDs))
		for _, id := range cur.TaxIDs {
			want[id] = true
		}
		selected = selected[:0:0]
		for _, t := range taxes {
			if want[t.ID] {
				selected = append(selected, t)
			}
		}
	}
	agg, err := s.engine.Aggregate(ctx, posting.PeriodDescriptor{ReportType: cur.ReportType, Key: cur.PeriodKey}, selected, s.repo, adj)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	now := s.now().UTC()
	cur.Totals = agg.Totals
	cur.PeriodStart, cur.PeriodEnd = agg.Period.Start, agg.Period.End
	cur.GeneratedAt = &now
	return s.writer.UpdateTaxReport(ctx, cur)
}

func (s *service) Confirm(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error) {
	return s.transition(ctx, id, ledger.ReportConfirmed)
}

func (s *service) Submit(ctx context.Context, id uuid.UUID) (ledger.TaxReport, error) {
	return s.transition(ctx, id, ledger.ReportSubmitted)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, to ledger.ReportState) (ledger.TaxReport, error) {
	cur, err := s.repo.GetTaxReport(ctx, id)
	if err != nil {
		return ledger.TaxReport{}, err
	}
	if err := posting.Transition(cur.State, to); err != nil {
		return ledger.TaxReport{}, err
	}
	cur.State = to
	if to == ledger.ReportSubmitted {
		now := s.now().UTC()
		cur.SubmittedAt = &now
	}
	return s.writer.UpdateTaxReport(ctx, cur)
}

func sameIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[uuid.UUID]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
