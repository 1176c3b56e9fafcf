// Package partner manages customers and suppliers referenced from journal lines.
package partner

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/slug"
)

type Repo interface {
	ListPartners(ctx context.Context) ([]ledger.Partner, error)
	GetPartner(ctx context.Context, id uuid.UUID) (ledger.Partner, error)
}

type Writer interface {
	CreatePartner(ctx context.Context, p ledger.Partner) (ledger.Partner, error)
	UpdatePartner(ctx context.Context, p ledger.Partner) (ledger.Partner, error)
}

type Service interface {
	Create(ctx context.Context, p ledger.Partner) (ledger.Partner, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Partner, error)
	List(ctx context.Context, t *ledger.PartnerType) ([]ledger.Partner, error)
	Update(ctx context.Context, p ledger.Partner) (ledger.Partner, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func invalid(msg string) error { return fmt.Errorf("%w: %s", errs.ErrInvalid, msg) }

func validate(p *ledger.Partner) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("name is required")
	}
	if p.Code == "" {
		p.Code = slug.Slugify(p.Name)
	}
	p.Code = slug.Normalize(p.Code)
	if !slug.IsCode(p.Code) {
		return invalid("code is required when the name has no latin letters or digits")
	}
	if p.Type == "" {
		p.Type = ledger.PartnerBoth
	}
	if !p.Type.Valid() {
		return invalid("type must be customer, supplier or both")
	}
	if p.Email = strings.TrimSpace(p.Email); p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return invalid("invalid email")
		}
	}
	return nil
}

func (s *service) codeTaken(ctx context.Context, p ledger.Partner) error {
	all, err := s.repo.ListPartners(ctx)
	if err != nil {
		return err
	}
	for _, o := range all {
		if o.Code == p.Code && o.ID != p.ID {
			return fmt.Errorf("%w: partner code %s already exists", errs.ErrConflict, p.Code)
		}
	}
	return nil
}

func (s *service) Create(ctx context.Context, p ledger.Partner) (ledger.Partner, error) {
	if err := validate(&p); err != nil {
		return ledger.Partner{}, err
	}
	p.ID = uuid.New()
	if err := s.codeTaken(ctx, p); err != nil {
		return ledger.Partner{}, err
	}
	p.Active = true
	return s.writer.CreatePartner(ctx, p)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Partner, error) {
	return s.repo.GetPartner(ctx, id)
}

func (s *service) List(ctx context.Context, t *ledger.PartnerType) ([]ledger.Partner, error) {
	all, err := s.repo.ListPartners(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Partner, 0, len(all))
	for _, p := range all {
		// a "both" partner is listed under either side
		if t != nil && p.Type != *t && p.Type != ledger.PartnerBoth {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *service) Update(ctx context.Context, p ledger.Partner) (ledger.Partner, error) {
	cur, err := s.repo.GetPartner(ctx, p.ID)
	if err != nil {
		return ledger.Partner{}, err
	}
	if err := validate(&p); err != nil {
		return ledger.Partner{}, err
	}
	if err := s.codeTaken(ctx, p); err != nil {
		return ledger.Partner{}, err
	}
	p.Active = cur.Active
	return s.writer.UpdatePartner(ctx, p)
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	cur, err := s.repo.GetPartner(ctx, id)
	if err != nil {
		return err
	}
	if !cur.Active {
		return nil
	}
	cur.Active = false
	_, err = s.writer.UpdatePartner(ctx, cur)
	return err
}
