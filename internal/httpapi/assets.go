package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/service/asset"
)

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	as, err := s.assets.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]assetResponse, 0, len(as))
	for _, a := range as {
		out = append(out, toAssetResponse(a))
	}
	ok(w, http.StatusOK, out)
}

func (s *Server) postAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	in, err := req.toDomain(uuid.Nil)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	created, err := s.assets.Create(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, toAssetResponse(created))
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	a, err := s.assets.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toAssetResponse(a))
}

// PUT /assets/{id}; version must match the stored asset. Omitting current_value
// keeps the stored book value.
func (s *Server) updateAsset(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	var req assetRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	in, err := req.toDomain(id)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	updated, err := s.assets.Update(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toAssetResponse(updated))
}

func (s *Server) deactivateAsset(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	if err := s.assets.Deactivate(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// depreciateAssets runs one depreciation period for the selected assets. The
// response lists every asset's outcome; 207 when at least one failed.
func (s *Server) depreciateAssets(w http.ResponseWriter, r *http.Request) {
	var req depreciateRequest
	if err := decodeJSON(r, &req); err != nil {
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
	outcomes, err := s.assets.Depreciate(r.Context(), asset.DepreciateRequest{
		AssetIDs:         req.AssetIDs,
		Date:             date,
		ExpenseAccountID: req.ExpenseAccountID,
		ContraAccountID:  req.ContraAccountID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	out := make([]depreciationResult, 0, len(outcomes))
	for _, o := range outcomes {
		recordPosting("depreciation", o.Err)
		if o.Err != nil {
			status = http.StatusMultiStatus
		}
		out = append(out, toDepreciationResult(o))
	}
	ok(w, status, out)
}

// GET /assets/{id}/schedule?from=
func (s *Server) assetSchedule(w http.ResponseWriter, r *http.Request) {
	id, good := idParam(w, r)
	if !good {
		return
	}
	from := ledger.DateOf(time.Now())
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := parseDate(v)
		if err != nil {
			badRequest(w, "invalid from")
			return
		}
		from = d
	}
	rows, err := s.assets.Schedule(r.Context(), id, from)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, toScheduleRows(rows))
}
