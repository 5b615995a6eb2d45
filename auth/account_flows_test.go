package auth_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jrsteele09/librahub-admin/auth"
	"github.com/jrsteele09/librahub-admin/internal/apitest"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/internal/utils"
	"github.com/jrsteele09/librahub-admin/users"
	"github.com/stretchr/testify/require"
)

func TestRegister_ThenVerifyEmail(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	loading := recordLoading(f.store)

	err := f.service.Register(ctx, auth.RegisterRequest{
		Email:       "reader@example.com",
		Password:    "Password123",
		FirstName:   "Ada",
		LastName:    "Reader",
		Phone:       utils.Ptr("+44 20 7946 0000"),
		DateOfBirth: utils.Ptr("1990-04-01"),
	})
	require.NoError(t, err)
	require.False(t, f.store.IsLoading())
	require.Empty(t, f.store.Error())
	require.Contains(t, loading(), true)

	u, ok := f.api.Account("reader@example.com")
	require.True(t, ok)
	require.Equal(t, users.StatusPending, u.Status)
	require.False(t, u.EmailVerified)

	require.NoError(t, f.service.VerifyEmail(ctx, f.api.VerificationToken("reader@example.com")))

	u, _ = f.api.Account("reader@example.com")
	require.True(t, u.EmailVerified)
	require.Equal(t, users.StatusActive, u.Status)

	// Verification leaves the session alone.
	require.False(t, f.store.IsAuthenticated())
	require.Empty(t, f.tokens.Keys())

	_, err = f.service.Login(ctx, auth.LoginRequest{Email: "reader@example.com", Password: "Password123"})
	require.NoError(t, err)
}

func TestRegister_Failures(t *testing.T) {
	tests := []struct {
		name      string
		req       auth.RegisterRequest
		wantMsg   string
		wantCalls int
	}{
		{
			name:      "duplicate email",
			req:       auth.RegisterRequest{Email: testUserEmail, Password: "Password123", FirstName: "John", LastName: "Doe"},
			wantMsg:   "An account with this email already exists",
			wantCalls: 1,
		},
		{
			name:    "short password",
			req:     auth.RegisterRequest{Email: "new@example.com", Password: "Pass1", FirstName: "New", LastName: "Reader"},
			wantMsg: "password must be at least 8 characters",
		},
		{
			name:    "blank name",
			req:     auth.RegisterRequest{Email: "new@example.com", Password: "Password123", FirstName: "  ", LastName: "Reader"},
			wantMsg: "firstName cannot be blank",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)

			err := f.service.Register(context.Background(), tt.req)
			require.Error(t, err)
			require.Equal(t, tt.wantMsg, err.Error())
			require.Equal(t, tt.wantMsg, f.store.Error())
			require.False(t, f.store.IsLoading())
			require.Equal(t, tt.wantCalls, f.api.Calls(apitest.RouteRegister))
		})
	}
}

// Password policy beyond length is the API's call; a lowercase-only
// password is sent as is.
func TestRegister_PasswordPolicyLeftToServer(t *testing.T) {
	f := setupTestFixture(t)

	err := f.service.Register(context.Background(), auth.RegisterRequest{
		Email:     "lower@example.com",
		Password:  "password",
		FirstName: "Lower",
		LastName:  "Case",
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.api.Calls(apitest.RouteRegister))

	f.api.FailNext(apitest.RouteRegister, http.StatusBadRequest, "Password must contain a number")
	err = f.service.Register(context.Background(), auth.RegisterRequest{
		Email:     "other@example.com",
		Password:  "password",
		FirstName: "Other",
		LastName:  "Reader",
	})
	require.EqualError(t, err, "Password must contain a number")
	require.ErrorIs(t, err, apperrors.ErrValidationRejected)
}

func TestVerifyEmail_InvalidToken(t *testing.T) {
	f := setupTestFixture(t)

	err := f.service.VerifyEmail(context.Background(), "not-a-token")
	require.EqualError(t, err, "Invalid or expired verification token")

	f.api.FailNext(apitest.RouteVerifyEmail, http.StatusBadGateway, "")
	err = f.service.VerifyEmail(context.Background(), "not-a-token")
	require.EqualError(t, err, auth.EmailVerificationFailedMsg)
	require.Equal(t, auth.EmailVerificationFailedMsg, f.store.Error())
}

func TestForgotPassword_ThenResetPassword(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	sess := f.login(t)

	require.NoError(t, f.service.ForgotPassword(ctx, testUserEmail))
	resetToken := f.api.ResetToken(testUserEmail)
	require.NotEmpty(t, resetToken)

	err := f.service.ResetPassword(ctx, auth.ResetPasswordRequest{
		Token:           resetToken,
		NewPassword:     "NewPassword456",
		ConfirmPassword: "NewPassword456",
	})
	require.NoError(t, err)

	// The server revokes outstanding tokens on reset.
	require.False(t, f.api.RefreshTokenValid(sess.Tokens.RefreshToken))

	_, err = f.service.Login(ctx, auth.LoginRequest{Email: testUserEmail, Password: testUserPassword})
	require.EqualError(t, err, "Invalid email or password")
	_, err = f.service.Login(ctx, auth.LoginRequest{Email: testUserEmail, Password: "NewPassword456"})
	require.NoError(t, err)
}

func TestForgotPassword_UnknownEmailStillSucceeds(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.service.ForgotPassword(context.Background(), "nobody@example.com"))
	require.Empty(t, f.api.ResetToken("nobody@example.com"))

	err := f.service.ForgotPassword(context.Background(), "not-an-email")
	require.EqualError(t, err, "email must be a valid email address")
	require.Equal(t, 1, f.api.Calls(apitest.RouteForgotPassword))
}

func TestResetPassword_Failures(t *testing.T) {
	tests := []struct {
		name      string
		req       auth.ResetPasswordRequest
		wantMsg   string
		wantCalls int
	}{
		{
			name:    "confirmation mismatch",
			req:     auth.ResetPasswordRequest{Token: "tok", NewPassword: "NewPassword456", ConfirmPassword: "NewPassword457"},
			wantMsg: "confirmPassword must match newPassword",
		},
		{
			name:    "missing token",
			req:     auth.ResetPasswordRequest{NewPassword: "NewPassword456", ConfirmPassword: "NewPassword456"},
			wantMsg: "token is required",
		},
		{
			name:      "unknown token",
			req:       auth.ResetPasswordRequest{Token: "tok", NewPassword: "NewPassword456", ConfirmPassword: "NewPassword456"},
			wantMsg:   "Invalid or expired reset token",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)

			err := f.service.ResetPassword(context.Background(), tt.req)
			require.EqualError(t, err, tt.wantMsg)
			require.Equal(t, tt.wantCalls, f.api.Calls(apitest.RouteResetPassword))
		})
	}
}

func TestResendVerificationEmail(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.Register(ctx, auth.RegisterRequest{
		Email: "new@example.com", Password: "Password123", FirstName: "New", LastName: "Reader",
	}))
	first := f.api.VerificationToken("new@example.com")

	msg, err := f.service.ResendVerificationEmail(ctx, auth.ResendVerificationEmailRequest{Email: "new@example.com"})
	require.NoError(t, err)
	require.Equal(t, auth.VerificationEmailSentMsg, msg)
	require.NotEqual(t, first, f.api.VerificationToken("new@example.com"))

	// Already verified accounts are refused by the server.
	msg, err = f.service.ResendVerificationEmail(ctx, auth.ResendVerificationEmailRequest{Email: testUserEmail})
	require.EqualError(t, err, "Email address is already verified")
	require.Empty(t, msg)
	require.Equal(t, "Email address is already verified", f.store.Error())
}

func TestCompleteRegistration(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	invite := f.api.Invite("staff@example.com", users.RoleLibrarian)

	err := f.service.CompleteRegistration(ctx, auth.CompleteRegistrationRequest{
		Token:     invite,
		FirstName: "Grace",
		LastName:  "Staff",
	})
	require.NoError(t, err)

	u, ok := f.api.Account("staff@example.com")
	require.True(t, ok)
	require.Equal(t, "Grace", u.FirstName)
	require.Equal(t, users.StatusActive, u.Status)
	require.True(t, u.HasRole(users.RoleLibrarian))

	// Tokens are single use.
	err = f.service.CompleteRegistration(ctx, auth.CompleteRegistrationRequest{
		Token:     invite,
		FirstName: "Grace",
		LastName:  "Staff",
	})
	require.EqualError(t, err, "Invalid or expired registration token")
}

// Account flows never renew or tear down the session, even on a 401.
func TestAccountFlows_UnauthorizedKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.FailNext(apitest.RouteForgotPassword, http.StatusUnauthorized, "")

	err := f.service.ForgotPassword(context.Background(), testUserEmail)
	require.EqualError(t, err, auth.ForgotPasswordFailedMsg)
	require.Equal(t, 0, f.api.Calls(apitest.RouteRefresh))
	require.True(t, f.store.IsAuthenticated())
	require.Len(t, f.tokens.Keys(), 2)
}
