// Package budget keeps spending caps per account and measures them against
// posted journal entries. Budgets move draft -> confirmed -> closed and only
// drafts can be edited or deleted.
package budget

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
	ListBudgets(ctx context.Context) ([]ledger.Budget, error)
	GetBudget(ctx context.Context, id uuid.UUID) (ledger.Budget, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error)
}

type Writer interface {
	CreateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	UpdateBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	DeleteBudget(ctx context.Context, id uuid.UUID) error
}

type Service interface {
	Create(ctx context.Context, b ledger.Budget) (ledger.BudgetUsage, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.BudgetUsage, error)
	List(ctx context.Context, state *ledger.BudgetState) ([]ledger.BudgetUsage, error)
	Update(ctx context.Context, b ledger.Budget) (ledger.BudgetUsage, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Confirm(ctx context.Context, id uuid.UUID) (ledger.BudgetUsage, error)
	Close(ctx context.Context, id uuid.UUID) (ledger.BudgetUsage, error)
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

func (s *service) validate(ctx context.Context, b *ledger.Budget) error {
	if b.Name = strings.TrimSpace(b.Name); b.Name == "" {
		return invalid("name is required")
	}
	if b.StartDate.IsZero() || b.EndDate.IsZero() {
		return invalid("start_date and end_date are required")
	}
	b.StartDate, b.EndDate = ledger.DateOf(b.StartDate), ledger.DateOf(b.EndDate)
	if b.EndDate.Before(b.StartDate) {
		return invalid("end_date must not be before start_date")
	}
	cur := s.engine.Currency()
	if b.Amount.IsNegative() {
		return invalid("amount must not be negative")
	}
	if !cur.Fits(b.Amount) {
		return invalid("amount exceeds " + cur.Code + " precision")
	}
	if b.AccountID == uuid.Nil {
		return invalid("account_id is required")
	}
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, a := range accs {
		if a.ID == b.AccountID {
			return nil
		}
	}
	return invalid("unknown account " + b.AccountID.String())
}

func (s *service) Create(ctx context.Context, b ledger.Budget) (ledger.BudgetUsage, error) {
	if err := s.validate(ctx, &b); err != nil {
		return ledger.BudgetUsage{}, err
	}
	b.ID = uuid.New()
	b.State = ledger.BudgetDraft
	b.CreatedAt = s.now().UTC()
	saved, err := s.writer.CreateBudget(ctx, b)
	if err != nil {
		return ledger.BudgetUsage{}, err
	}
	return s.usage(ctx, saved)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.BudgetUsage, error) {
	b, err := s.repo.GetBudget(ctx, id)
	if err != nil {
		return ledger.BudgetUsage{}, err
	}
	return s.usage(ctx, b)
}

// List returns budgets newest period first, each with its spending.
func (s *service) List(ctx context.Context, state *ledger.BudgetState) ([]ledger.BudgetUsage, error) {
	all, err := s.repo.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	picked := make([]ledger.Budget, 0, len(all))
	for _, b := range all {
		if state == nil || b.State == *state {
			picked = append(picked, b)
		}
	}
	if len(picked) == 0 {
		return []ledger.BudgetUsage{}, nil
	}
	sort.Slice(picked, func(i, j int) bool {
		if !picked[i].StartDate.Equal(picked[j].StartDate) {
			return picked[i].StartDate.After(picked[j].StartDate)
		}
		return picked[i].CreatedAt.After(picked[j].CreatedAt)
	})
	from, to := picked[0].StartDate, picked[0].EndDate
	for _, b := range picked[1:] {
		if b.StartDate.Before(from) {
			from = b.StartDate
		}
		if b.EndDate.After(to) {
			to = b.EndDate
		}
	}
	m, err := s.measurer(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.BudgetUsage, len(picked))
	for i, b := range picked {
		out[i] = m.usage(b)
	}
	return out, nil
}

func (s *service) draft(ctx context.Context, id uuid.UUID) (ledger.Budget, error) {
	cur, err := s.repo.GetBudget(ctx, id)
	if err != nil {
		return ledger.Budget{}, err
	}
	if cur.State != ledger.BudgetDraft {
		return ledger.Budget{}, fmt.Errorf("%w: budget is %s", errs.ErrImmutable, cur.State)
	}
	return cur, nil
}

func (s *service) Update(ctx context.Context, b ledger.Budget) (ledger.BudgetUsage, error) {
	cur, err := s.draft(ctx, b.ID)
	if err != nil {
		return ledger.BudgetUsage{}, err
	}
	if err := s.validate(ctx, &b); err != nil {
		return ledger.BudgetUsage{}, err
	}
	b.State, b.CreatedAt = cur.State, cur.CreatedAt
	saved, err := s.writer.UpdateBudget(ctx, b)
	if err != nil {
		return ledger.BudgetUsage{}, err
	}
	return s.usage(ctx, saved)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.draft(ctx, id); err != nil {
		return err
	}
	return s.writer.DeleteBudget(ctx, id)
}

func (s *service) Confirm(ctx context.Context, id uuid.UUID) (ledger.BudgetUsage, error) {
	return s.transition(ctx, id, ledger.BudgetConfirmed)
}

func (s *service) Close(ctx context.Context, id uuid.UUID) (ledger.BudgetUsage, error) {
	return s.transition(ctx, id, ledger.BudgetClosed)
}

var transitions = map[ledger.BudgetState]ledger.BudgetState{
	ledger.BudgetDraft:     ledger.BudgetConfirmed,
	ledger.BudgetConfirmed: ledger.BudgetClosed,
}

func (s *service) transition(ctx context.Context, id uuid.UUID, to ledger.BudgetState) (ledger.BudgetUsage, error) {
	cur, err := s.repo.GetBudget(ctx, id)
	if err != nil {
		return ledger.BudgetUsage{}, err
	}
	if next, ok := transitions[cur.State]; !ok || next != to {
		return ledger.BudgetUsage{}, fmt.Errorf("%w: cannot move budget from %s to %s", errs.ErrConflict, cur.State, to)
	}
	cur.State = to
	saved, err := s.writer.UpdateBudget(ctx, cur)
	if err != nil {
		return ledger.BudgetUsage{}, err
	}
	return s.usage(ctx, saved)
}

func (s *service) usage(ctx context.Context, b ledger.Budget) (ledger.BudgetUsage, error) {
	m, err := s.measurer(ctx, b.StartDate, b.EndDate)
	if err != nil {
		return ledger.BudgetUsage{}, err
	}
	return m.usage(b), nil
}

// measurer loads the chart and the posted entries dated within [from, to].
func (s *service) measurer(ctx context.Context, from, to time.Time) (*measurer, error) {
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, ledger.EntryFilter{From: &from, To: &to, State: ledger.EntryPosted})
	if err != nil {
		return nil, err
	}
	m := &measurer{accounts: make(map[uuid.UUID]ledger.Account, len(accs)), entries: entries}
	for _, a := range accs {
		m.accounts[a.ID] = a
	}
	return m, nil
}

type measurer struct {
	accounts map[uuid.UUID]ledger.Account
	entries  []ledger.JournalEntry
}

// covers reports whether id is root or one of its descendants.
func (m *measurer) covers(root, id uuid.UUID) bool {
	for depth := 0; depth <= len(m.accounts); depth++ {
		if id == root {
			return true
		}
		a, ok := m.accounts[id]
		if !ok || a.ParentID == nil {
			return false
		}
		id = *a.ParentID
	}
	return false
}

// usage measures spending on the budget account and its sub-accounts on the
// account's normal side. Reversed entries net out against their reversals.
func (m *measurer) usage(b ledger.Budget) ledger.BudgetUsage {
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range m.entries {
		if e.Date.Before(b.StartDate) || e.Date.After(b.EndDate) {
			continue
		}
		for _, ln := range e.Lines {
			if m.covers(b.AccountID, ln.AccountID) {
				debit = debit.Add(ln.Debit)
				credit = credit.Add(ln.Credit)
			}
		}
	}
	spent := debit.Sub(credit)
	if t := m.accounts[b.AccountID].Type; t != ledger.AccountTypeAsset && t != ledger.AccountTypeExpense {
		spent = spent.Neg()
	}
	return ledger.BudgetUsage{
		Budget:     b,
		FiscalYear: b.StartDate.Year(),
		Spent:      spent,
		Remaining:  b.Amount.Sub(spent),
	}
}
