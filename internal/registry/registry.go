// Package registry holds an immutable, indexed snapshot of the chart of accounts.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

var (
	ErrDuplicateCode = errors.New("duplicate account code")
	ErrUnknownParent = errors.New("unknown parent account")
	ErrCycle         = errors.New("account hierarchy cycle")
)

// Registry indexes accounts by id and code. It is safe for concurrent reads.
type Registry struct {
	byID     map[uuid.UUID]ledger.Account
	byCode   map[string]uuid.UUID
	children map[uuid.UUID][]uuid.UUID
	ordered  []ledger.Account
}

// New builds a registry and rejects duplicate codes, dangling parents and cycles.
func New(accounts []ledger.Account) (*Registry, error) {
	r := &Registry{
		byID:     make(map[uuid.UUID]ledger.Account, len(accounts)),
		byCode:   make(map[string]uuid.UUID, len(accounts)),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
	for _, a := range accounts {
		if _, dup := r.byCode[a.Code]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, a.Code)
		}
		r.byCode[a.Code] = a.ID
		r.byID[a.ID] = a
	}
	for _, a := range accounts {
		if a.ParentID == nil {
			continue
		}
		if _, ok := r.byID[*a.ParentID]; !ok {
			return nil, fmt.Errorf("%w: %s (parent of %s)", ErrUnknownParent, *a.ParentID, a.Code)
		}
		r.children[*a.ParentID] = append(r.children[*a.ParentID], a.ID)
	}
	for _, a := range accounts {
		if err := r.checkAncestry(a.ID, a.ParentID); err != nil {
			return nil, err
		}
	}
	r.ordered = append([]ledger.Account(nil), accounts...)
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Code < r.ordered[j].Code })
	return r, nil
}

// checkAncestry walks up from parent and fails if it reaches id.
func (r *Registry) checkAncestry(id uuid.UUID, parent *uuid.UUID) error {
	seen := map[uuid.UUID]bool{id: true}
	for parent != nil {
		if seen[*parent] {
			return fmt.Errorf("%w: %s", ErrCycle, r.byID[id].Code)
		}
		seen[*parent] = true
		p, ok := r.byID[*parent]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParent, *parent)
		}
		parent = p.ParentID
	}
	return nil
}

func (r *Registry) Lookup(id uuid.UUID) (ledger.Account, bool) {
	a, ok := r.byID[id]
	return a, ok
}

func (r *Registry) ByCode(code string) (ledger.Account, bool) {
	id, ok := r.byCode[code]
	if !ok {
		return ledger.Account{}, false
	}
	return r.byID[id], true
}

// All returns every account ordered by code.
func (r *Registry) All() []ledger.Account {
	return append([]ledger.Account(nil), r.ordered...)
}

func (r *Registry) ByType(t ledger.AccountType) []ledger.Account {
	var out []ledger.Account
	for _, a := range r.ordered {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) Children(id uuid.UUID) []ledger.Account {
	out := make([]ledger.Account, 0, len(r.children[id]))
	for _, c := range r.children[id] {
		out = append(out, r.byID[c])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Admit checks that a (a new account or an edit of an existing one) can join the
// registry: its code is unused by any other account, its parent exists and the
// edit creates no cycle.
func (r *Registry) Admit(a ledger.Account) error {
	if id, ok := r.byCode[a.Code]; ok && id != a.ID {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, a.Code)
	}
	if a.ParentID == nil {
		return nil
	}
	if *a.ParentID == a.ID {
		return fmt.Errorf("%w: %s", ErrCycle, a.Code)
	}
	return r.checkAncestry(a.ID, a.ParentID)
}
