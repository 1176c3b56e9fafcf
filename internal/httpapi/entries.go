package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/posting"
)

// GET /journal-entries?from=&to=&state=
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	f, _ := r.Context().Value(ctxKeyListEntries).(ledger.EntryFilter)
	entries, err := s.journal.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	ok(w, http.StatusOK, out)
}

// postEntry stores the entry validated by validateEntryBody. A repeated
// Idempotency-Key returns the first entry with 200 and Idempotent-Replay.
func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	e, _ := r.Context().Value(ctxKeyEntry).(ledger.JournalEntry)
	created, replayed, err := s.journal.Create(r.Context(), e, r.Header.Get("Idempotency-Key"))
	if err != nil {
		recordPosting("journal_entry", err)
		s.fail(w, r, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replay", "true")
		ok(w, http.StatusOK, toEntryResponse(created))
		return
	}
	recordPosting("journal_entry", nil)
	ok(w, http.StatusCreated, toEntryResponse(created))
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	e, err := s.journal.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toEntryResponse(e))
}

// PUT /journal-entries/{id}; drafts only.
func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	e, _ := r.Context().Value(ctxKeyEntry).(ledger.JournalEntry)
	e.ID = id
	updated, err := s.journal.Update(r.Context(), e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toEntryResponse(updated))
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	if err := s.journal.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /journal-entries/{id}/post
func (s *Server) postDraft(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	e, err := s.journal.Post(r.Context(), id)
	recordPosting("post", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toEntryResponse(e))
}

// POST /journal-entries/{id}/reverse with an optional {"date": "YYYY-MM-DD"} body.
// The reversal is dated today when no date is given.
func (s *Server) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req struct {
		Date string `json:"date"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	date := ledger.DateOf(time.Now())
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		date = d
	}
	rev, err := s.journal.Reverse(r.Context(), id, date)
	recordPosting("reverse", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toEntryResponse(rev))
}

// postAutoEntries builds and posts one entry per rule. Rules are independent:
// a rule that fails to decode or post is reported without affecting the others.
func (s *Server) postAutoEntries(w http.ResponseWriter, r *http.Request) {
	var req autoEntriesRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Rules) == 0 {
		badRequest(w, "rules is required")
		return
	}
	date := ledger.DateOf(time.Now())
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		date = d
	}

	results := make([]ruleResult, len(req.Rules))
	rules := make([]posting.Rule, 0, len(req.Rules))
	// positions maps the index of a decoded rule back to its request index.
	positions := make([]int, 0, len(req.Rules))
	for i, raw := range req.Rules {
		results[i].Index = i
		rule, err := posting.DecodeRule(raw)
		if err != nil {
			recordPosting("auto_rule", err)
			results[i].Code = posting.CodeOf(err)
			results[i].Message = err.Error()
			continue
		}
		rules = append(rules, rule)
		positions = append(positions, i)
	}
	for _, res := range s.journal.ApplyRules(r.Context(), rules, date) {
		recordPosting("auto_rule", res.Err)
		out := &results[positions[res.Index]]
		if res.Err != nil {
			_, out.Code = mapError(res.Err)
			out.Message = res.Err.Error()
			continue
		}
		out.Success = true
		e := toEntryResponse(*res.Entry)
		out.Entry = &e
	}

	status := http.StatusCreated
	for _, res := range results {
		if !res.Success {
			status = http.StatusMultiStatus
			break
		}
	}
	ok(w, status, results)
}

// GET /trial-balance?as_of=
func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := asOfFrom(r.Context())
	tb, err := s.journal.TrialBalance(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTrialBalanceResponse(tb, asOf))
}
