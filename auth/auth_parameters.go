package auth

import (
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/users"
)

// Remote endpoints used by the gateway, relative to the API base URL.
const (
	PathLogin                   = "/auth/login"
	PathRegister                = "/auth/register"
	PathRefresh                 = "/auth/refresh"
	PathVerifyEmail             = "/auth/verify-email"
	PathForgotPassword          = "/auth/forgot-password"
	PathResetPassword           = "/auth/reset-password"
	PathResendVerificationEmail = "/auth/resend-verification-email"
	PathCompleteRegistration    = "/users/complete-registration"
	PathMe                      = "/me"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a pending account. The server sends the
// verification email.
type RegisterRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,min=8"`
	FirstName   string  `json:"firstName" validate:"required,nonblank"`
	LastName    string  `json:"lastName" validate:"required,nonblank"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"dateOfBirth,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest consumes a reset token from the password-reset email.
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

type ResendVerificationEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CompleteRegistrationRequest finishes an account created by an administrator
// invite. Token comes from the invite email.
type CompleteRegistrationRequest struct {
	Token       string  `json:"token" validate:"required"`
	FirstName   string  `json:"firstName" validate:"required,nonblank"`
	LastName    string  `json:"lastName" validate:"required,nonblank"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"dateOfBirth,omitempty"`
}

// Session is what a successful Login or Initialize produced.
type Session struct {
	User   users.User
	Tokens token.Pair
}
