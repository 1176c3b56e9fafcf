package httpapi

import (
	"errors"
	"net/http"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/posting"
)

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, envelope{Success: false, Message: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "bad_request") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }

// mapError normalizes service and engine errors into a status and machine code.
// Engine errors carry their own code; sentinels map to a generic one.
func mapError(err error) (status int, code string) {
	switch {
	case errors.Is(err, posting.ErrValidation), errors.Is(err, posting.ErrDepreciation),
		errors.Is(err, posting.ErrTax), errors.Is(err, posting.ErrReport):
		return http.StatusUnprocessableEntity, posting.CodeOf(err)
	case errors.Is(err, errs.ErrUnprocessable):
		return http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, errs.ErrInvalid):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errs.ErrVersionConflict):
		return http.StatusConflict, "version_conflict"
	case errors.Is(err, errs.ErrSystemAccount):
		return http.StatusConflict, "system_account"
	case errors.Is(err, errs.ErrImmutable):
		return http.StatusConflict, "immutable"
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// errorDetails exposes the structured fields of engine errors.
func errorDetails(err error) any {
	var unbalanced *posting.UnbalancedEntryError
	if errors.As(err, &unbalanced) {
		return map[string]string{
			"debit_total":  unbalanced.DebitTotal.String(),
			"credit_total": unbalanced.CreditTotal.String(),
			"difference":   unbalanced.Difference.String(),
		}
	}
	var (
		unknown  *posting.UnknownAccountError
		inactive *posting.InactiveAccountError
		partner  *posting.UnknownPartnerError
		line     *posting.InvalidLineError
	)
	switch {
	case errors.As(err, &unknown):
		return map[string]int{"line_index": unknown.LineIndex}
	case errors.As(err, &inactive):
		return map[string]int{"line_index": inactive.LineIndex}
	case errors.As(err, &partner):
		return map[string]int{"line_index": partner.LineIndex}
	case errors.As(err, &line):
		return map[string]int{"line_index": line.LineIndex}
	}
	return nil
}

// fail writes err as an error envelope. Unexpected errors are logged at ERROR and
// their message withheld; domain rejections are logged at WARN.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapError(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
		writeErr(w, status, "internal error", code)
		return
	}
	s.log.Warn("request rejected", "path", r.URL.Path, "code", code, "err", err)
	toJSON(w, status, envelope{Success: false, Message: err.Error(), Code: code, Details: errorDetails(err)})
}
