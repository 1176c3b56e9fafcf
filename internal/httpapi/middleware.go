package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

type ctxKey string

const (
	ctxKeyEntry       ctxKey = "validatedEntry"
	ctxKeyListEntries ctxKey = "validatedListEntries"
	ctxKeyAsOf        ctxKey = "validatedAsOf"
)

// requestLogger logs basic request info at INFO.
func requestLogger(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			reqID := chimw.GetReqID(r.Context())
			l.Info("request started", "req_id", reqID, "method", r.Method, "path", r.URL.Path)

			next.ServeHTTP(ww, r)

			l.Info("request complete",
				"req_id", reqID,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

// recoverer logs panics as ERROR and returns 500.
func recoverer(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					reqID := chimw.GetReqID(r.Context())
					l.Error("panic", "req_id", reqID, "err", rec, "stack", string(debug.Stack()))
					writeErr(w, http.StatusInternalServerError, "internal error", "internal_error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requireJSON rejects bodies that are not application/json (parameters allowed) with 415.
func requireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		mime := strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
		if mime != "application/json" {
			writeErr(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "unsupported_media_type")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validateEntryBody decodes a journal entry body, runs it through the posting
// validator and stores the domain entry in the request context.
func (s *Server) validateEntryBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req entryRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid JSON: "+err.Error())
			return
		}
		e, err := req.toDomain()
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		if _, err := s.journal.Validate(r.Context(), e); err != nil {
			recordPosting("validate", err)
			s.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyEntry, e)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateListEntries parses the from, to and state query parameters.
func (s *Server) validateListEntries(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var f ledger.EntryFilter
		var err error
		if f.From, err = parseDateParam(q.Get("from")); err != nil {
			badRequest(w, "invalid from")
			return
		}
		if f.To, err = parseDateParam(q.Get("to")); err != nil {
			badRequest(w, "invalid to")
			return
		}
		switch st := ledger.EntryState(q.Get("state")); st {
		case "", ledger.EntryDraft, ledger.EntryPosted:
			f.State = st
		default:
			badRequest(w, "state must be draft or posted")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyListEntries, f)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateAsOf parses the optional as_of query parameter.
func (s *Server) validateAsOf(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		asOf, err := parseDateParam(r.URL.Query().Get("as_of"))
		if err != nil {
			badRequest(w, "invalid as_of")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyAsOf, asOf)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func asOfFrom(ctx context.Context) *time.Time {
	v, _ := ctx.Value(ctxKeyAsOf).(*time.Time)
	return v
}
