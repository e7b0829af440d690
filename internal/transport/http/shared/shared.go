// Package shared centralizes JSON response envelopes and domain error
// translation so every feature handler answers in the same shape.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope returned by every handler.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP response. Internal detail
// never leaks: only non-internal coded errors surface their message.
func WriteError(w http.ResponseWriter, err error) {
	code := derrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	var de *derrors.Error
	if code != derrors.CodeInternal && errors.As(err, &de) {
		resp.Message = de.Message
	}
	WriteJSON(w, toHTTPStatus(code), resp)
}

func toHTTPStatus(code derrors.Code) int {
	switch code {
	case derrors.CodeBadRequest, derrors.CodeInvalidInput, derrors.CodeValidation:
		return http.StatusBadRequest
	case derrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case derrors.CodeForbidden:
		return http.StatusForbidden
	case derrors.CodeNotFound:
		return http.StatusNotFound
	case derrors.CodeConflict:
		return http.StatusConflict
	case derrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
