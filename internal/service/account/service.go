// Package account implements the chart-of-accounts rules: unique normalized codes,
// an acyclic parent tree, immutable type once referenced, protected system accounts
// and soft deletes.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/dictionary"
	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/registry"
	"github.com/tinoosan/bookkeeper/internal/slug"
)

type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	// AccountInUse reports whether any journal line references the account.
	AccountInUse(ctx context.Context, id uuid.UUID) (bool, error)
}

type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
}

type Service interface {
	Create(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	List(ctx context.Context, t *ledger.AccountType) ([]ledger.Account, error)
	Update(ctx context.Context, a ledger.Account) (ledger.Account, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// Registry returns a consistent snapshot of the chart for posting validation.
	Registry(ctx context.Context) (*registry.Registry, error)
	// EnsureChart creates the chart's accounts that are missing by code. Idempotent.
	EnsureChart(ctx context.Context, c dictionary.Chart) ([]ledger.Account, error)
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func invalid(msg string) error { return fmt.Errorf("%w: %s", errs.ErrInvalid, msg) }

func (s *service) Registry(ctx context.Context) (*registry.Registry, error) {
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return registry.New(accs)
}

func normalize(a *ledger.Account) error {
	a.Code = slug.Normalize(a.Code)
	a.Name = strings.TrimSpace(a.Name)
	if !slug.IsCode(a.Code) {
		return invalid("code must match ^[a-z0-9][a-z0-9_.-]{0,39}$")
	}
	if a.Name == "" {
		return invalid("name is required")
	}
	if !a.Type.Valid() {
		return invalid("invalid account type")
	}
	return nil
}

// admit maps registry admission failures onto the service sentinels.
func admit(reg *registry.Registry, a ledger.Account) error {
	err := reg.Admit(a)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrDuplicateCode):
		return fmt.Errorf("%w: %v", errs.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", errs.ErrInvalid, err)
	}
}

func (s *service) Create(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := normalize(&a); err != nil {
		return ledger.Account{}, err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	reg, err := s.Registry(ctx)
	if err != nil {
		return ledger.Account{}, err
	}
	if err := admit(reg, a); err != nil {
		return ledger.Account{}, err
	}
	if a.ParentID != nil {
		if p, _ := reg.Lookup(*a.ParentID); !p.Active {
			return ledger.Account{}, invalid("parent account is inactive")
		}
	}
	a.Active = true
	return s.writer.CreateAccount(ctx, a)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// List returns accounts ordered by code, optionally filtered by type.
func (s *service) List(ctx context.Context, t *ledger.AccountType) ([]ledger.Account, error) {
	reg, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return reg.ByType(*t), nil
	}
	return reg.All(), nil
}

// Update edits code, name and parent. Type changes are refused once journal lines
// reference the account; system accounts are read-only.
func (s *service) Update(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	cur, err := s.repo.GetAccount(ctx, a.ID)
	if err != nil {
		return ledger.Account{}, err
	}
	if cur.System {
		return ledger.Account{}, errs.ErrSystemAccount
	}
	if err := normalize(&a); err != nil {
		return ledger.Account{}, err
	}
	if a.Type != cur.Type {
		used, err := s.repo.AccountInUse(ctx, a.ID)
		if err != nil {
			return ledger.Account{}, err
		}
		if used {
			return ledger.Account{}, fmt.Errorf("%w: account type cannot change once posted to", errs.ErrImmutable)
		}
	}
	reg, err := s.Registry(ctx)
	if err != nil {
		return ledger.Account{}, err
	}
	if err := admit(reg, a); err != nil {
		return ledger.Account{}, err
	}
	a.System = cur.System
	a.Active = cur.Active
	return s.writer.UpdateAccount(ctx, a)
}

// Deactivate soft-deletes an account. Accounts with active children stay.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	cur, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if cur.System {
		return errs.ErrSystemAccount
	}
	if !cur.Active {
		return nil
	}
	reg, err := s.Registry(ctx)
	if err != nil {
		return err
	}
	for _, c := range reg.Children(id) {
		if c.Active {
			return fmt.Errorf("%w: account %s has active children", errs.ErrConflict, cur.Code)
		}
	}
	cur.Active = false
	_, err = s.writer.UpdateAccount(ctx, cur)
	return err
}

func (s *service) EnsureChart(ctx context.Context, c dictionary.Chart) ([]ledger.Account, error) {
	existing, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]ledger.Account, len(existing))
	for _, a := range existing {
		byCode[a.Code] = a
	}
	out := make([]ledger.Account, 0, len(c.Accounts))
	for _, def := range c.Accounts {
		if a, ok := byCode[slug.Normalize(def.Code)]; ok {
			out = append(out, a)
			continue
		}
		a := ledger.Account{Code: def.Code, Name: def.Name, Type: def.Type, System: def.System}
		if def.Parent != "" {
			parent, ok := byCode[slug.Normalize(def.Parent)]
			if !ok {
				return nil, invalid("chart parent " + def.Parent + " not found")
			}
			a.ParentID = &parent.ID
		}
		created, err := s.Create(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("seed account %s: %w", def.Code, err)
		}
		byCode[created.Code] = created
		out = append(out, created)
	}
	return out, nil
}
