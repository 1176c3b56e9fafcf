package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/dictionary"
	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// idParam parses the {id} route parameter, writing 400 when it is not a UUID.
func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// GET /accounts?type=
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	var t *ledger.AccountType
	if v := r.URL.Query().Get("type"); v != "" {
		at := ledger.AccountType(v)
		if !at.Valid() {
			badRequest(w, "invalid type")
			return
		}
		t = &at
	}
	accs, err := s.accounts.List(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	a, err := s.accounts.Create(r.Context(), ledger.Account{Code: req.Code, Name: req.Name, Type: req.Type, ParentID: req.ParentID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toAccountResponse(a))
}

// postChart handles POST /accounts/batch: a chart in dictionary form whose
// missing accounts are created. Existing codes are left untouched.
func (s *Server) postChart(w http.ResponseWriter, r *http.Request) {
	var req dictionary.Chart
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Accounts) == 0 {
		badRequest(w, "accounts is required")
		return
	}
	if len(req.Accounts) > 500 {
		writeErr(w, http.StatusUnprocessableEntity, "too_many_items", "too_many_items")
		return
	}
	accs, err := s.accounts.EnsureChart(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	ok(w, http.StatusCreated, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	a, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toAccountResponse(a))
}

// PUT /accounts/{id}
func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	a, err := s.accounts.Update(r.Context(), ledger.Account{ID: id, Code: req.Code, Name: req.Name, Type: req.Type, ParentID: req.ParentID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toAccountResponse(a))
}

// deactivateAccount handles DELETE /accounts/{id} as a soft delete.
func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	if err := s.accounts.Deactivate(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /accounts/{id}/balance?as_of=
func (s *Server) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	asOf := asOfFrom(r.Context())
	bal, err := s.journal.AccountBalance(r.Context(), id, asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"account_id": id, "as_of": fmtDatePtr(asOf), "balance": bal})
}

type ledgerItem struct {
	Date           string          `json:"date"`
	EntryID        uuid.UUID       `json:"entry_id"`
	Ref            string          `json:"ref"`
	LineID         uuid.UUID       `json:"line_id"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// GET /accounts/{id}/ledger?from=&to=&limit=&cursor=
// Posted lines of the account in date/ref order with a running debit-minus-credit
// balance that includes everything before from.
func (s *Server) getAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	q := r.URL.Query()
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		badRequest(w, "invalid from")
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		badRequest(w, "invalid to")
		return
	}
	lim := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			lim = n
		}
	}
	if _, err := s.accounts.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}

	running := decimal.Zero
	if from != nil {
		before := from.AddDate(0, 0, -1)
		if running, err = s.journal.AccountBalance(r.Context(), id, &before); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	entries, err := s.journal.List(r.Context(), ledger.EntryFilter{From: from, To: to, State: ledger.EntryPosted})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]ledgerItem, 0, 64)
	for _, e := range entries {
		for _, ln := range e.Lines {
			if ln.AccountID != id {
				continue
			}
			running = running.Add(ln.Debit).Sub(ln.Credit)
			items = append(items, ledgerItem{
				Date: fmtDate(e.Date), EntryID: e.ID, Ref: e.Ref, LineID: ln.ID,
				Debit: ln.Debit, Credit: ln.Credit, RunningBalance: running,
			})
		}
	}

	start := 0
	if cursor := q.Get("cursor"); cursor != "" {
		b, err := base64.StdEncoding.DecodeString(cursor)
		if err != nil {
			badRequest(w, "invalid cursor")
			return
		}
		parts := strings.Split(string(b), "|")
		if len(parts) != 2 {
			badRequest(w, "invalid cursor")
			return
		}
		if _, err := time.Parse(time.DateOnly, parts[0]); err != nil {
			badRequest(w, "invalid cursor")
			return
		}
		for i := range items {
			if items[i].LineID.String() == parts[1] {
				start = i + 1
				break
			}
		}
	}
	end := min(start+lim, len(items))
	page := items[start:end]

	resp := struct {
		AccountID  uuid.UUID    `json:"account_id"`
		Items      []ledgerItem `json:"items"`
		NextCursor *string      `json:"next_cursor,omitempty"`
	}{AccountID: id, Items: page}
	if end < len(items) {
		last := page[len(page)-1]
		c := base64.StdEncoding.EncodeToString([]byte(last.Date + "|" + last.LineID.String()))
		resp.NextCursor = &c
	}
	ok(w, http.StatusOK, resp)
}
