// Package common holds the error and response primitives shared by every
// HTTP surface of the cart API.
package common

// Canonical error codes returned by the cart API. Handlers map the engine's
// typed sentinels onto these; middleware uses them directly.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeValidation      = "VALIDATION"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeBusy            = "BUSY"
	CodeUnavailable     = "UNAVAILABLE"
	CodeRateLimited     = "RATE_LIMITED"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeInternal        = "INTERNAL"
)

// AppError is a failure that already knows how to render: a client-facing
// code and HTTP status alongside the underlying cause. The engine itself
// returns plain typed sentinels (ErrItemNotFound and friends); AppError is
// for collaborators such as storage backends whose failures carry their own
// status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is/As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError wraps err with a code and the HTTP status it must render as.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}
