package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// GET /tax-reports?state=
func (s *Server) listTaxReports(w http.ResponseWriter, r *http.Request) {
	var st *ledger.ReportState
	switch v := ledger.ReportState(r.URL.Query().Get("state")); v {
	case "":
	case ledger.ReportDraft, ledger.ReportConfirmed, ledger.ReportSubmitted:
		st = &v
	default:
		badRequest(w, "invalid state")
		return
	}
	reports, err := s.taxReports.List(r.Context(), st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]taxReportResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toTaxReportResponse(rep))
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) postTaxReport(w http.ResponseWriter, r *http.Request) {
	var req taxReportRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	rep, err := s.taxReports.Create(r.Context(), req.toDomain(uuid.Nil))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toTaxReportResponse(rep))
}

func (s *Server) getTaxReport(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	rep, err := s.taxReports.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTaxReportResponse(rep))
}

func (s *Server) updateTaxReport(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req taxReportRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	rep, err := s.taxReports.Update(r.Context(), req.toDomain(id))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTaxReportResponse(rep))
}

func (s *Server) deleteTaxReport(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	if err := s.taxReports.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// generateTaxReport aggregates the report period. The body is optional; when
// present it may carry a manual_adjustment overriding the VAT payable.
func (s *Server) generateTaxReport(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	var adj *ledger.ManualAdjustment
	if req.ManualAdjustment != nil {
		adj = &ledger.ManualAdjustment{VATPayable: req.ManualAdjustment.VATPayable, Reason: req.ManualAdjustment.Reason}
	}
	rep, err := s.taxReports.Generate(r.Context(), id, adj)
	recordPosting("tax_report", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTaxReportResponse(rep))
}

func (s *Server) confirmTaxReport(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	rep, err := s.taxReports.Confirm(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTaxReportResponse(rep))
}

func (s *Server) submitTaxReport(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	rep, err := s.taxReports.Submit(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toTaxReportResponse(rep))
}
