// Package httputil writes JSON responses and translates coded domain errors
// into HTTP statuses with a client-safe body.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "carepilot/pkg/domain-errors"
)

// ErrorResponse is the body of every error reply: {"error": "...", "code": "..."}.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const internalMessage = "Something went wrong. Please try again."

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to a status. Internal errors never echo their message;
// timeouts and provider failures keep theirs since those are written for users.
func WriteError(w http.ResponseWriter, err error) {
	status, body := ErrorBody(err)
	WriteJSON(w, status, body)
}

// ErrorBody is the status and client-safe body WriteError would send, for
// transports that report errors inside an already started stream.
func ErrorBody(err error) (int, ErrorResponse) {
	code := dErrors.CodeOf(err)
	msg := dErrors.SafeMessage(err)
	if code == dErrors.CodeInternal {
		msg = internalMessage
	}
	return StatusFor(code), ErrorResponse{Error: msg, Code: string(code)}
}

// StatusFor is the single code→status table for the HTTP surface.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation,
		dErrors.CodeInvariantViolation, dErrors.CodeUnknownAction, dErrors.CodeNotFound,
		dErrors.CodeAmbiguous, dErrors.CodeForbidden, dErrors.CodeConflict:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeQuotaExceeded:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}
