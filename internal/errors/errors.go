package errors

import (
	"errors"
)

// Error kinds surfaced by the LibraHub client
var (
	// Remote rejections
	ErrValidationRejected     = errors.New("request rejected by server validation")
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrNotFound               = errors.New("not found")

	// ErrAuthorizationExpired marks a 401 on an authenticated request whose
	// automatic renewal could not run to completion. The session is kept.
	ErrAuthorizationExpired = errors.New("authorization expired")

	// Local preconditions
	ErrNoRefreshToken  = errors.New("no refresh token available")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidResponse = errors.New("invalid response")

	// Transport and local storage
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrStorageUnavailable = errors.New("token storage unavailable")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
