// Package memory provides an in-memory store used for development and tests.
// It implements every repository and writer the services need.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// entryKey orders entries ascending by (Date, Ref).
type entryKey struct {
	Date time.Time
	Ref  string
	ID   uuid.UUID
}

func (k entryKey) less(o entryKey) bool {
	if !k.Date.Equal(o.Date) {
		return k.Date.Before(o.Date)
	}
	return k.Ref < o.Ref
}

// Store is guarded by a single RWMutex; composite writes (reversal, depreciation)
// happen under one write lock and are therefore atomic.
type Store struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]ledger.Account
	partners  map[uuid.UUID]ledger.Partner
	taxes     map[uuid.UUID]ledger.Tax
	assets    map[uuid.UUID]ledger.Asset
	reports   map[uuid.UUID]ledger.TaxReport
	budgets   map[uuid.UUID]ledger.Budget
	entries   map[uuid.UUID]ledger.JournalEntry
	entryKeys []entryKey
	entryIdem map[string]uuid.UUID
	sequences map[string]int64
}

func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.partners = map[uuid.UUID]ledger.Partner{}
	s.taxes = map[uuid.UUID]ledger.Tax{}
	s.assets = map[uuid.UUID]ledger.Asset{}
	s.reports = map[uuid.UUID]ledger.TaxReport{}
	s.budgets = map[uuid.UUID]ledger.Budget{}
	s.entries = map[uuid.UUID]ledger.JournalEntry{}
	s.entryKeys = nil
	s.entryIdem = map[string]uuid.UUID{}
	s.sequences = map[string]int64{}
}

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// Seed helpers for local dev/tests.
func (s *Store) SeedAccount(a ledger.Account) { s.mu.Lock(); s.accounts[a.ID] = a; s.mu.Unlock() }
func (s *Store) SeedPartner(p ledger.Partner) { s.mu.Lock(); s.partners[p.ID] = p; s.mu.Unlock() }
func (s *Store) SeedTax(t ledger.Tax)         { s.mu.Lock(); s.taxes[t.ID] = t; s.mu.Unlock() }
func (s *Store) SeedAsset(a ledger.Asset)     { s.mu.Lock(); s.assets[a.ID] = a; s.mu.Unlock() }

// ---- sequences ----

func (s *Store) NextSequence(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[name]++
	return s.sequences[name], nil
}

// ---- accounts ----

func (s *Store) ListAccounts(context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.accounts {
		if o.Code == a.Code {
			return ledger.Account{}, errs.ErrConflict
		}
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *Store) AccountInUse(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		for _, ln := range e.Lines {
			if ln.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// ---- partners ----

func (s *Store) ListPartners(context.Context) ([]ledger.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Partner, 0, len(s.partners))
	for _, p := range s.partners {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetPartner(_ context.Context, id uuid.UUID) (ledger.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[id]
	if !ok {
		return ledger.Partner{}, errs.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreatePartner(_ context.Context, p ledger.Partner) (ledger.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePartner(_ context.Context, p ledger.Partner) (ledger.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partners[p.ID]; !ok {
		return ledger.Partner{}, errs.ErrNotFound
	}
	s.partners[p.ID] = p
	return p, nil
}

// ---- taxes ----

func (s *Store) ListTaxes(context.Context) ([]ledger.Tax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Tax, 0, len(s.taxes))
	for _, t := range s.taxes {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) GetTax(_ context.Context, id uuid.UUID) (ledger.Tax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.taxes[id]
	if !ok {
		return ledger.Tax{}, errs.ErrNotFound
	}
	return t, nil
}

func (s *Store) CreateTax(_ context.Context, t ledger.Tax) (ledger.Tax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxes[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTax(_ context.Context, t ledger.Tax) (ledger.Tax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.taxes[t.ID]; !ok {
		return ledger.Tax{}, errs.ErrNotFound
	}
	s.taxes[t.ID] = t
	return t, nil
}

// ---- journal entries ----

func cloneEntry(e ledger.JournalEntry) ledger.JournalEntry {
	e.Lines = append([]ledger.JournalLine(nil), e.Lines...)
	if e.Metadata != nil {
		e.Metadata = e.Metadata.Clone()
	}
	return e
}

func (s *Store) CreateJournalEntry(_ context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertEntryLocked(e)
	return cloneEntry(e), nil
}

func (s *Store) UpdateJournalEntry(_ context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	s.removeEntryLocked(e.ID)
	s.insertEntryLocked(e)
	return cloneEntry(e), nil
}

func (s *Store) DeleteJournalEntry(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return errs.ErrNotFound
	}
	s.removeEntryLocked(id)
	for k, v := range s.entryIdem {
		if v == id {
			delete(s.entryIdem, k)
		}
	}
	return nil
}

func (s *Store) CreateReversal(_ context.Context, originalID uuid.UUID, rev ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, ok := s.entries[originalID]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	if orig.IsReversed {
		return ledger.JournalEntry{}, errs.ErrConflict
	}
	orig.IsReversed = true
	s.entries[originalID] = orig
	s.insertEntryLocked(rev)
	return cloneEntry(rev), nil
}

func (s *Store) GetEntry(_ context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	return cloneEntry(e), nil
}

// ListEntries returns entries matching f, ascending by (date, ref).
func (s *Store) ListEntries(_ context.Context, f ledger.EntryFilter) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.rangeByTimeLocked(f.From, f.To)
	out := make([]ledger.JournalEntry, 0, len(keys))
	for _, k := range keys {
		e := s.entries[k.ID]
		if f.Matches(e) {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *Store) GetEntryByIdempotencyKey(_ context.Context, key string) (ledger.JournalEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.entryIdem[key]; ok {
		if e, ok := s.entries[id]; ok {
			return cloneEntry(e), true, nil
		}
	}
	return ledger.JournalEntry{}, false, nil
}

// CreateKeyedJournalEntry stores e under key, or returns the entry the key is
// already bound to with replayed=true.
func (s *Store) CreateKeyedJournalEntry(_ context.Context, key string, e ledger.JournalEntry) (ledger.JournalEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entryIdem[key]; ok {
		if prev, ok := s.entries[id]; ok {
			return cloneEntry(prev), true, nil
		}
	}
	s.insertEntryLocked(e)
	s.entryIdem[key] = e.ID
	return cloneEntry(e), false, nil
}

// TaxedLines returns tagged lines of posted entries within [from, to], skipping
// reversed entries and reversals.
func (s *Store) TaxedLines(_ context.Context, from, to time.Time, taxIDs []uuid.UUID) ([]ledger.TaxedLine, error) {
	want := make(map[uuid.UUID]bool, len(taxIDs))
	for _, id := range taxIDs {
		want[id] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.TaxedLine
	for _, k := range s.rangeByTimeLocked(&from, &to) {
		e := s.entries[k.ID]
		if e.State != ledger.EntryPosted || e.IsReversed || e.ReversalOf != nil {
			continue
		}
		for _, ln := range e.Lines {
			if ln.TaxID == nil || !want[*ln.TaxID] {
				continue
			}
			out = append(out, ledger.TaxedLine{EntryID: e.ID, Date: e.Date, TaxID: *ln.TaxID, TaxAmount: ln.TaxAmount, Debit: ln.Debit, Credit: ln.Credit})
		}
	}
	return out, nil
}

// insertEntryLocked stores e and inserts its key keeping the index sorted.
// Caller must hold s.mu (write lock).
func (s *Store) insertEntryLocked(e ledger.JournalEntry) {
	s.entries[e.ID] = cloneEntry(e)
	k := entryKey{Date: e.Date, Ref: e.Ref, ID: e.ID}
	i := sort.Search(len(s.entryKeys), func(i int) bool { return k.less(s.entryKeys[i]) })
	s.entryKeys = append(s.entryKeys, entryKey{})
	copy(s.entryKeys[i+1:], s.entryKeys[i:])
	s.entryKeys[i] = k
}

func (s *Store) removeEntryLocked(id uuid.UUID) {
	delete(s.entries, id)
	for i, k := range s.entryKeys {
		if k.ID == id {
			s.entryKeys = append(s.entryKeys[:i], s.entryKeys[i+1:]...)
			return
		}
	}
}

// rangeByTimeLocked returns a copy of keys within [from,to] inclusive.
func (s *Store) rangeByTimeLocked(from, to *time.Time) []entryKey {
	keys := s.entryKeys
	start, end := 0, len(keys)
	if from != nil {
		f := ledger.DateOf(*from)
		start = sort.Search(len(keys), func(i int) bool { return !keys[i].Date.Before(f) })
	}
	if to != nil {
		t := ledger.DateOf(*to)
		end = sort.Search(len(keys), func(i int) bool { return keys[i].Date.After(t) })
	}
	if start >= end {
		return nil
	}
	return append([]entryKey(nil), keys[start:end]...)
}

// ---- assets ----

func (s *Store) ListAssets(context.Context) ([]ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) GetAsset(_ context.Context, id uuid.UUID) (ledger.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return ledger.Asset{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) CreateAsset(_ context.Context, a ledger.Asset) (ledger.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAsset(_ context.Context, a ledger.Asset) (ledger.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAssetLocked(a)
}

func (s *Store) updateAssetLocked(a ledger.Asset) (ledger.Asset, error) {
	cur, ok := s.assets[a.ID]
	if !ok {
		return ledger.Asset{}, errs.ErrNotFound
	}
	if cur.Version != a.Version {
		return ledger.Asset{}, errs.ErrVersionConflict
	}
	a.Version++
	s.assets[a.ID] = a
	return a, nil
}

func (s *Store) ApplyDepreciation(_ context.Context, a ledger.Asset, e ledger.JournalEntry) (ledger.Asset, ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, err := s.updateAssetLocked(a)
	if err != nil {
		return ledger.Asset{}, ledger.JournalEntry{}, err
	}
	s.insertEntryLocked(e)
	return updated, cloneEntry(e), nil
}

// ---- tax reports ----

func cloneReport(r ledger.TaxReport) ledger.TaxReport {
	r.TaxIDs = append([]uuid.UUID(nil), r.TaxIDs...)
	if r.Totals.ManualAdjustment != nil {
		adj := *r.Totals.ManualAdjustment
		r.Totals.ManualAdjustment = &adj
	}
	return r
}

func (s *Store) ListTaxReports(context.Context) ([]ledger.TaxReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.TaxReport, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, cloneReport(r))
	}
	return out, nil
}

func (s *Store) GetTaxReport(_ context.Context, id uuid.UUID) (ledger.TaxReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return ledger.TaxReport{}, errs.ErrNotFound
	}
	return cloneReport(r), nil
}

func (s *Store) CreateTaxReport(_ context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = cloneReport(r)
	return r, nil
}

func (s *Store) UpdateTaxReport(_ context.Context, r ledger.TaxReport) (ledger.TaxReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; !ok {
		return ledger.TaxReport{}, errs.ErrNotFound
	}
	s.reports[r.ID] = cloneReport(r)
	return r, nil
}

func (s *Store) DeleteTaxReport(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.reports, id)
	return nil
}

// ---- budgets ----

func (s *Store) ListBudgets(context.Context) ([]ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) GetBudget(_ context.Context, id uuid.UUID) (ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok {
		return ledger.Budget{}, errs.ErrNotFound
	}
	return b, nil
}

func (s *Store) CreateBudget(_ context.Context, b ledger.Budget) (ledger.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBudget(_ context.Context, b ledger.Budget) (ledger.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[b.ID]; !ok {
		return ledger.Budget{}, errs.ErrNotFound
	}
	s.budgets[b.ID] = b
	return b, nil
}

func (s *Store) DeleteBudget(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.budgets, id)
	return nil
}
