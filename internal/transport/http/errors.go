package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielrichman/snowball-ticketing/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidCount       = "invalid_count"
	codeInvalidTicketType  = "invalid_ticket_type"
	codeInvalidGroup       = "invalid_group"
	codeInvalidMode        = "invalid_mode"
	codeUserNotFound       = "user_not_found"
	codeTicketNotFound     = "ticket_not_found"
	codeScopeNotFound      = "scope_not_found"
	codeAlreadyFinalised   = "already_finalised"
	codeReleaseConflict    = "release_conflict"
	codePurgeConflict      = "purge_conflict"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"

	// Buy refusal codes, one per reason in the refusal taxonomy.
	codeNotAvailable      = "tickets_not_available"
	codeQuotaMet          = "quota_met"
	codeQuotaNotMet       = "quota_not_met"
	codeWaitingQuotaMet   = "waiting_quota_met"
	codeInsufficientSpare = "insufficient_spare"
	codePerPersonAnyMet   = "per_person_limit_met"
	codePerPersonTypeMet  = "per_person_type_limit_met"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeBuyError maps a buy refusal onto a status and reason code. Form-race
// refusals get 409: the caller acted on a stale availability view and should
// re-render. The remaining refusals get 422: the request was understood and
// current but cannot be satisfied.
func writeBuyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCount):
		writeError(w, http.StatusBadRequest, codeInvalidCount, err.Error())
	case errors.Is(err, domain.ErrIncorrectMode):
		writeError(w, http.StatusConflict, codeNotAvailable, err.Error())
	case errors.Is(err, domain.ErrWaitingQuotaMet):
		// Checked before ErrQuotaMet, which it wraps.
		writeError(w, http.StatusConflict, codeWaitingQuotaMet, err.Error())
	case errors.Is(err, domain.ErrQuotaMet):
		writeError(w, http.StatusConflict, codeQuotaMet, err.Error())
	case errors.Is(err, domain.ErrQuotaNotMet):
		writeError(w, http.StatusConflict, codeQuotaNotMet, err.Error())
	case errors.Is(err, domain.ErrInsufficientSpare):
		writeError(w, http.StatusUnprocessableEntity, codeInsufficientSpare, err.Error())
	case errors.Is(err, domain.ErrQPPTypeMet):
		writeError(w, http.StatusUnprocessableEntity, codePerPersonTypeMet, err.Error())
	case errors.Is(err, domain.ErrQPPAnyMet):
		writeError(w, http.StatusUnprocessableEntity, codePerPersonAnyMet, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
