package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// GET /partners?type=customer|supplier|both
func (s *Server) listPartners(w http.ResponseWriter, r *http.Request) {
	var t *ledger.PartnerType
	if v := r.URL.Query().Get("type"); v != "" {
		pt := ledger.PartnerType(v)
		if !pt.Valid() {
			badRequest(w, "invalid type")
			return
		}
		t = &pt
	}
	ps, err := s.partners.List(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]partnerResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPartnerResponse(p))
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) postPartner(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	p, err := s.partners.Create(r.Context(), req.toDomain(uuid.Nil))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toPartnerResponse(p))
}

func (s *Server) getPartner(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	p, err := s.partners.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toPartnerResponse(p))
}

func (s *Server) updatePartner(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req partnerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	p, err := s.partners.Update(r.Context(), req.toDomain(id))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toPartnerResponse(p))
}

func (s *Server) deactivatePartner(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	if err := s.partners.Deactivate(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
