package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// GET /budgets?state=
// Each budget carries its spent and remaining amounts as of now.
func (s *Server) listBudgets(w http.ResponseWriter, r *http.Request) {
	var st *ledger.BudgetState
	switch v := ledger.BudgetState(r.URL.Query().Get("state")); v {
	case "":
	case ledger.BudgetDraft, ledger.BudgetConfirmed, ledger.BudgetClosed:
		st = &v
	default:
		badRequest(w, "invalid state")
		return
	}
	budgets, err := s.budgets.List(r.Context(), st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) postBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	b, err := req.toDomain(uuid.Nil)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	created, err := s.budgets.Create(r.Context(), b)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toBudgetResponse(created))
}

func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	s.budgetAction(w, r, s.budgets.Get)
}

func (s *Server) updateBudget(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req budgetRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	b, err := req.toDomain(id)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	updated, err := s.budgets.Update(r.Context(), b)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toBudgetResponse(updated))
}

func (s *Server) deleteBudget(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	if err := s.budgets.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) confirmBudget(w http.ResponseWriter, r *http.Request) {
	s.budgetAction(w, r, s.budgets.Confirm)
}

func (s *Server) closeBudget(w http.ResponseWriter, r *http.Request) {
	s.budgetAction(w, r, s.budgets.Close)
}

func (s *Server) budgetAction(w http.ResponseWriter, r *http.Request, do func(context.Context, uuid.UUID) (ledger.BudgetUsage, error)) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	b, err := do(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toBudgetResponse(b))
}
