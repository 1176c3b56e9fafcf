package httpapi

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/tax"
)

// GET /taxes?type=&category=&active=
func (s *Server) listTaxes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f tax.Filter
	if v := q.Get("type"); v != "" {
		t := ledger.TaxType(v)
		if !t.Valid() {
			badRequest(w, "invalid type")
			return
		}
		f.Type = &t
	}
	if v := q.Get("category"); v != "" {
		c := ledger.TaxCategory(v)
		if !c.Valid() {
			badRequest(w, "invalid category")
			return
		}
		f.Category = &c
	}
	if v := q.Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "invalid active")
			return
		}
		f.ActiveOnly = b
	}
	ts, err := s.taxes.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]taxResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTaxResponse(t))
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) postTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	t, err := req.toDomain(uuid.Nil)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	created, err := s.taxes.Create(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toTaxResponse(created))
}

func (s *Server) getTax(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	t, err := s.taxes.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTaxResponse(t))
}

func (s *Server) updateTax(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req taxRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	t, err := req.toDomain(id)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	updated, err := s.taxes.Update(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTaxResponse(updated))
}

func (s *Server) deactivateTax(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	if err := s.taxes.Deactivate(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// calculateTax computes a split either from a stored tax ({tax_id, amount}) or
// from a raw rate ({supply_amount, tax_rate, inclusive}).
func (s *Server) calculateTax(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	var (
		calc posting.TaxCalculation
		err  error
	)
	switch {
	case req.TaxID != nil:
		if req.Amount == nil {
			badRequest(w, "amount is required with tax_id")
			return
		}
		calc, err = s.taxes.CalculateFor(r.Context(), *req.TaxID, *req.Amount)
	case req.SupplyAmount != nil && req.TaxRate != nil:
		if req.Inclusive {
			calc, err = s.engine.CalculateInclusive(*req.SupplyAmount, *req.TaxRate)
		} else {
			calc, err = s.taxes.Calculate(*req.SupplyAmount, *req.TaxRate)
		}
	default:
		badRequest(w, "supply_amount and tax_rate, or tax_id and amount, are required")
		return
	}
	recordPosting("tax", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toCalculationResponse(calc))
}
