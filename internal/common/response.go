package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error envelope every cart API failure renders as, nested
// under an "error" key so clients can branch on presence.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes v to the response with the given status. Encoding failures
// are ignored: headers are already flushed and the client sees a truncated
// body either way.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders the canonical error envelope. Code should be one of the
// Code constants in this package.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
