// Package journal owns the journal entry lifecycle: validation through the posting
// engine, sequential references, draft edits, posting, reversal and balances.
package journal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/meta"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/registry"
)

// SeqJournalEntry names the store sequence behind entry references.
const SeqJournalEntry = "journal_entry"

type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	ListPartners(ctx context.Context) ([]ledger.Partner, error)
	ListTaxes(ctx context.Context) ([]ledger.Tax, error)
	ListEntries(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	GetEntryByIdempotencyKey(ctx context.Context, key string) (ledger.JournalEntry, bool, error)
}

type Writer interface {
	// NextSequence atomically increments and returns the named counter (first value 1).
	NextSequence(ctx context.Context, name string) (int64, error)
	CreateJournalEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	UpdateJournalEntry(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	DeleteJournalEntry(ctx context.Context, id uuid.UUID) error
	// CreateReversal stores reversal and marks originalID reversed in one step.
	// It fails with errs.ErrConflict when the original is already reversed.
	CreateReversal(ctx context.Context, originalID uuid.UUID, reversal ledger.JournalEntry) (ledger.JournalEntry, error)
	// CreateKeyedJournalEntry stores e bound to key in one step. When key is already
	// bound it stores nothing and returns the bound entry with replayed=true.
	CreateKeyedJournalEntry(ctx context.Context, key string, e ledger.JournalEntry) (ledger.JournalEntry, bool, error)
}

type Service interface {
	Validate(ctx context.Context, e ledger.JournalEntry) (posting.ValidatedEntry, error)
	// Create validates and stores e. With a non-empty idempotency key a repeated call
	// returns the first entry and replayed=true.
	Create(ctx context.Context, e ledger.JournalEntry, idemKey string) (created ledger.JournalEntry, replayed bool, err error)
	Get(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	List(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error)
	Update(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Post(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	Reverse(ctx context.Context, id uuid.UUID, date time.Time) (ledger.JournalEntry, error)
	ApplyRules(ctx context.Context, rules []posting.Rule, date time.Time) []RuleResult
	TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error)
	AccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (decimal.Decimal, error)
}

// RuleResult is the outcome of one auto-journal rule.
type RuleResult struct {
	Index int
	Entry *ledger.JournalEntry
	Err   error
}

type TrialBalanceRow struct {
	Account ledger.Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	// Balance is Debit - Credit.
	Balance decimal.Decimal
}

type TrialBalance struct {
	Rows        []TrialBalanceRow
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
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

type partnerIndex map[uuid.UUID]ledger.Partner

func (p partnerIndex) Partner(id uuid.UUID) (ledger.Partner, bool) { v, ok := p[id]; return v, ok }

type taxIndex map[uuid.UUID]ledger.Tax

func (t taxIndex) Tax(id uuid.UUID) (ledger.Tax, bool) { v, ok := t[id]; return v, ok }

func (s *service) registry(ctx context.Context) (*registry.Registry, error) {
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return registry.New(accs)
}

func (s *service) taxes(ctx context.Context) (taxIndex, error) {
	all, err := s.repo.ListTaxes(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(taxIndex, len(all))
	for _, t := range all {
		idx[t.ID] = t
	}
	return idx, nil
}

func (s *service) Validate(ctx context.Context, e ledger.JournalEntry) (posting.ValidatedEntry, error) {
	reg, err := s.registry(ctx)
	if err != nil {
		return posting.ValidatedEntry{}, err
	}
	partners, err := s.repo.ListPartners(ctx)
	if err != nil {
		return posting.ValidatedEntry{}, err
	}
	pidx := make(partnerIndex, len(partners))
	for _, p := range partners {
		pidx[p.ID] = p
	}
	v, err := s.engine.Validate(reg, pidx, e)
	if err != nil {
		return posting.ValidatedEntry{}, err
	}
	if err := s.checkTaxTags(ctx, e); err != nil {
		return posting.ValidatedEntry{}, err
	}
	if e.Metadata != nil {
		if err := e.Metadata.Validate(); err != nil {
			return posting.ValidatedEntry{}, fmt.Errorf("%w: %v", errs.ErrInvalid, err)
		}
	}
	return v, nil
}

func (s *service) checkTaxTags(ctx context.Context, e ledger.JournalEntry) error {
	var idx taxIndex
	for i, ln := range e.Lines {
		if ln.TaxID == nil {
			continue
		}
		if idx == nil {
			var err error
			if idx, err = s.taxes(ctx); err != nil {
				return err
			}
		}
		if _, ok := idx[*ln.TaxID]; !ok {
			return fmt.Errorf("%w: line %d: unknown tax %s", errs.ErrUnprocessable, i, *ln.TaxID)
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, e ledger.JournalEntry, idemKey string) (ledger.JournalEntry, bool, error) {
	if idemKey != "" {
		prev, ok, err := s.repo.GetEntryByIdempotencyKey(ctx, idemKey)
		if err != nil {
			return ledger.JournalEntry{}, false, err
		}
		if ok {
			return prev, true, nil
		}
	}
	if e.State == "" {
		e.State = ledger.EntryDraft
	}
	if e.State != ledger.EntryDraft && e.State != ledger.EntryPosted {
		return ledger.JournalEntry{}, false, fmt.Errorf("%w: state must be draft or posted", errs.ErrInvalid)
	}
	if idemKey == "" {
		created, err := s.create(ctx, e)
		return created, false, err
	}
	e, err := s.prepare(ctx, e)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	return s.writer.CreateKeyedJournalEntry(ctx, idemKey, e)
}

// create prepares e and stores it.
func (s *service) create(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	e, err := s.prepare(ctx, e)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.writer.CreateJournalEntry(ctx, e)
}

// prepare validates e and assigns identity and reference.
func (s *service) prepare(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	v, err := s.Validate(ctx, e)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e = v.Entry
	seq, err := s.writer.NextSequence(ctx, SeqJournalEntry)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.ID = uuid.New()
	e.Ref = fmt.Sprintf("%06d", seq)
	if e.Name == "" {
		e.Name = "JE/" + e.Ref
	}
	if e.Date.IsZero() {
		e.Date = s.now()
	}
	e.Date = ledger.DateOf(e.Date)
	e.CreatedAt = s.now().UTC()
	if e.Metadata == nil {
		e.Metadata = meta.New(nil)
	}
	if _, ok := e.Metadata.Get(meta.KeySource); !ok {
		_ = e.Metadata.Set(meta.KeySource, meta.SourceManual)
	}
	for i := range e.Lines {
		e.Lines[i].ID = uuid.New()
	}
	return e, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

func (s *service) List(ctx context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	return s.repo.ListEntries(ctx, f)
}

// Update replaces the lines and header of a draft entry. Posted entries only change
// through a reversing entry.
func (s *service) Update(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	cur, err := s.repo.GetEntry(ctx, e.ID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if cur.State != ledger.EntryDraft {
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s is posted", errs.ErrImmutable, cur.Ref)
	}
	v, err := s.Validate(ctx, e)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	next := v.Entry
	next.Ref, next.State, next.CreatedAt = cur.Ref, cur.State, cur.CreatedAt
	if next.Name == "" {
		next.Name = cur.Name
	}
	if next.Date.IsZero() {
		next.Date = cur.Date
	}
	next.Date = ledger.DateOf(next.Date)
	if next.Metadata == nil {
		next.Metadata = cur.Metadata
	}
	for i := range next.Lines {
		next.Lines[i].ID = uuid.New()
	}
	return s.writer.UpdateJournalEntry(ctx, next)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	cur, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if cur.State != ledger.EntryDraft {
		return fmt.Errorf("%w: entry %s is posted", errs.ErrImmutable, cur.Ref)
	}
	return s.writer.DeleteJournalEntry(ctx, id)
}

// Post re-validates a draft against the current chart and marks it posted.
func (s *service) Post(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	cur, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if cur.State == ledger.EntryPosted {
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s is already posted", errs.ErrConflict, cur.Ref)
	}
	if _, err := s.Validate(ctx, cur); err != nil {
		return ledger.JournalEntry{}, err
	}
	cur.State = ledger.EntryPosted
	return s.writer.UpdateJournalEntry(ctx, cur)
}

// Reverse posts a mirror of a posted entry with debit and credit swapped.
func (s *service) Reverse(ctx context.Context, id uuid.UUID, date time.Time) (ledger.JournalEntry, error) {
	orig, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	switch {
	case orig.State != ledger.EntryPosted:
		return ledger.JournalEntry{}, fmt.Errorf("%w: only posted entries can be reversed", errs.ErrConflict)
	case orig.IsReversed:
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s is already reversed", errs.ErrConflict, orig.Ref)
	case orig.ReversalOf != nil:
		return ledger.JournalEntry{}, fmt.Errorf("%w: entry %s is itself a reversal", errs.ErrConflict, orig.Ref)
	}
	if date.IsZero() {
		date = s.now()
	}
	if ledger.DateOf(date).Before(orig.Date) {
		return ledger.JournalEntry{}, fmt.Errorf("%w: reversal date precedes the original entry", errs.ErrInvalid)
	}
	lines := make([]ledger.JournalLine, len(orig.Lines))
	for i, ln := range orig.Lines {
		nl := ln
		nl.ID = uuid.New()
		nl.Debit, nl.Credit = ln.Credit, ln.Debit
		lines[i] = nl
	}
	rev := ledger.JournalEntry{
		Name:       "Reversal of " + orig.Ref,
		Date:       ledger.DateOf(date),
		State:      ledger.EntryPosted,
		Memo:       "reversal of " + orig.Ref + ": " + orig.Memo,
		Lines:      lines,
		ReversalOf: &orig.ID,
		Metadata:   meta.New(map[string]string{meta.KeySource: meta.SourceReversal}),
	}
	v, err := s.Validate(ctx, rev)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	rev = v.Entry
	seq, err := s.writer.NextSequence(ctx, SeqJournalEntry)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	rev.ID = uuid.New()
	rev.Ref = fmt.Sprintf("%06d", seq)
	rev.CreatedAt = s.now().UTC()
	return s.writer.CreateReversal(ctx, orig.ID, rev)
}

// ApplyRules expands each rule and stores it as a draft. Rules fail independently.
func (s *service) ApplyRules(ctx context.Context, rules []posting.Rule, date time.Time) []RuleResult {
	out := make([]RuleResult, len(rules))
	taxes, err := s.taxes(ctx)
	for i, r := range rules {
		out[i].Index = i
		if err != nil {
			out[i].Err = err
			continue
		}
		e, berr := s.engine.BuildRuleEntry(r, taxes, date)
		if berr != nil {
			out[i].Err = berr
			continue
		}
		created, cerr := s.create(ctx, e)
		if cerr != nil {
			out[i].Err = cerr
			continue
		}
		out[i].Entry = &created
	}
	return out
}

// TrialBalance sums posted lines per account up to asOf (inclusive).
func (s *service) TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error) {
	reg, err := s.registry(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	entries, err := s.repo.ListEntries(ctx, ledger.EntryFilter{State: ledger.EntryPosted, To: asOf})
	if err != nil {
		return TrialBalance{}, err
	}
	cur := s.engine.Currency()
	type sides struct{ debit, credit money.Amount }
	acc := make(map[uuid.UUID]*sides)
	zero, err := money.NewAmountFromMinorUnits(cur.Code, 0)
	if err != nil {
		return TrialBalance{}, err
	}
	for _, e := range entries {
		for _, ln := range e.Lines {
			sd, ok := acc[ln.AccountID]
			if !ok {
				sd = &sides{debit: zero, credit: zero}
				acc[ln.AccountID] = sd
			}
			if sd.debit, err = addMinor(sd.debit, cur, ln.Debit); err != nil {
				return TrialBalance{}, err
			}
			if sd.credit, err = addMinor(sd.credit, cur, ln.Credit); err != nil {
				return TrialBalance{}, err
			}
		}
	}
	tb := TrialBalance{DebitTotal: decimal.Zero, CreditTotal: decimal.Zero}
	for id, sd := range acc {
		a, _ := reg.Lookup(id)
		debit, err := fromAmount(cur, sd.debit)
		if err != nil {
			return TrialBalance{}, err
		}
		credit, err := fromAmount(cur, sd.credit)
		if err != nil {
			return TrialBalance{}, err
		}
		row := TrialBalanceRow{Account: a, Debit: debit, Credit: credit}
		row.Balance = row.Debit.Sub(row.Credit)
		tb.DebitTotal = tb.DebitTotal.Add(row.Debit)
		tb.CreditTotal = tb.CreditTotal.Add(row.Credit)
		tb.Rows = append(tb.Rows, row)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Account.Code < tb.Rows[j].Account.Code })
	return tb, nil
}

// AccountBalance returns debit minus credit of posted lines on one account.
func (s *service) AccountBalance(ctx context.Context, accountID uuid.UUID, asOf *time.Time) (decimal.Decimal, error) {
	tb, err := s.TrialBalance(ctx, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range tb.Rows {
		if r.Account.ID == accountID {
			return r.Balance, nil
		}
	}
	reg, err := s.registry(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if _, ok := reg.Lookup(accountID); !ok {
		return decimal.Zero, errs.ErrNotFound
	}
	return decimal.Zero, nil
}

func addMinor(sum money.Amount, cur ledger.Currency, d decimal.Decimal) (money.Amount, error) {
	if d.IsZero() {
		return sum, nil
	}
	units, err := cur.MinorUnits(d)
	if err != nil {
		return sum, err
	}
	amt, err := money.NewAmountFromMinorUnits(cur.Code, units)
	if err != nil {
		return sum, err
	}
	return sum.Add(amt)
}

func fromAmount(cur ledger.Currency, a money.Amount) (decimal.Decimal, error) {
	units, ok := a.MinorUnits()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: total %s is out of range", errs.ErrUnprocessable, a)
	}
	return cur.FromMinorUnits(units), nil
}
