package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
)

// APIError is a non-2xx response from the LibraHub API. The body shape is
// {"code": "...", "message": "...", "details": ...}; any of it may be missing.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("librahub api: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("librahub api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is maps status codes onto the client's error kinds so callers can use
// errors.Is(err, apperrors.ErrValidationRejected) and friends.
func (e *APIError) Is(target error) bool {
	switch target {
	case apperrors.ErrValidationRejected:
		return e.StatusCode == http.StatusBadRequest ||
			e.StatusCode == http.StatusConflict ||
			e.StatusCode == http.StatusUnprocessableEntity
	case apperrors.ErrAuthenticationRejected:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case apperrors.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// StatusCode returns the HTTP status carried by err, 0 if none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Message returns the server supplied message of err, if there is one.
func Message(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// MessageOr returns the server message or fallback.
func MessageOr(err error, fallback string) string {
	if msg, ok := Message(err); ok {
		return msg
	}
	return fallback
}
