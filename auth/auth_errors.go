package auth

import (
	"errors"

	"github.com/jrsteele09/librahub-admin/apiclient"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/internal/validation"
)

// Messages shown when the server gives no reason of its own.
const (
	LoginFailedMsg                = "Login failed. Please try again."
	RegistrationFailedMsg         = "Registration failed. Please try again."
	EmailVerificationFailedMsg    = "Email verification failed. Please try again."
	ForgotPasswordFailedMsg       = "Failed to send reset email. Please try again."
	ResetPasswordFailedMsg        = "Failed to reset password. Please try again."
	ResendVerificationFailedMsg   = "Failed to send verification email. Please try again."
	CompleteRegistrationFailedMsg = "Failed to complete registration. Please try again."

	// SessionUnavailableMsg is set when a session operation could not reach
	// the API or token storage. The session itself is unchanged.
	SessionUnavailableMsg = "Unable to reach LibraHub. Please check your connection and try again."

	VerificationEmailSentMsg = "Verification email sent successfully."
)

var ErrNoRefreshToken = apperrors.ErrNoRefreshToken

// Error is a failed gateway operation. Message is what was written to the
// session store's error field.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the text to display for err: the gateway message, the
// server message, a local validation message, or fallback.
func Message(err error, fallback string) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	if errors.Is(err, apperrors.ErrInvalidInput) {
		return validation.Message(err)
	}
	return apiclient.MessageOr(err, fallback)
}
