package apitest

import (
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/librahub-admin/auth"
	"github.com/jrsteele09/librahub-admin/users"
)

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		if !decode(w, r, &req) {
			return
		}

		a, err := s.accounts.byEmail(req.Email)
		if err != nil || !passwordMatches(a, req.Password) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		switch {
		case a.Status == users.StatusDisabled:
			writeError(w, http.StatusForbidden, "Account is disabled")
			return
		case !a.EmailVerified:
			writeError(w, http.StatusForbidden, "Email address has not been verified")
			return
		}

		pair, err := s.issuer.issue(a.User)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Could not issue tokens")
			return
		}
		_, _ = s.accounts.update(a.UserID, func(a *account) error {
			now := NowTimeFunc()
			a.LastLoginAt = &now
			return nil
		})
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RegisterRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Email and password are required")
			return
		}
		if _, err := s.accounts.byEmail(req.Email); err == nil {
			writeError(w, http.StatusConflict, "An account with this email already exists")
			return
		}

		s.accounts.upsert(&account{
			User: users.User{
				Email:     req.Email,
				Roles:     []users.RoleType{roleUser},
				Status:    users.StatusPending,
				FirstName: req.FirstName,
				LastName:  req.LastName,
			},
			PasswordHash: hashPassword(req.Password),
			Phone:        req.Phone,
			DateOfBirth:  req.DateOfBirth,
			CreatedAt:    time.Now(),
		})
		s.issueEmailToken(s.verifications, req.Email)
		w.WriteHeader(http.StatusCreated)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.RefreshRequest
		if !decode(w, r, &req) {
			return
		}
		userID, err := s.issuer.rotate(req.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		a, err := s.accounts.byID(userID)
		if err != nil || a.Status == users.StatusDisabled {
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
			return
		}
		pair, err := s.issuer.issue(a.User)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Could not issue tokens")
			return
		}
		writeJSON(w, http.StatusOK, pair)
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := s.accounts.byID(callerID(r))
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, a.User)
	}
}

func (s *Server) VerifyEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.VerifyEmailRequest
		if !decode(w, r, &req) {
			return
		}
		email, ok := s.consumeEmailToken(s.verifications, req.Token)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid or expired verification token")
			return
		}
		a, err := s.accounts.byEmail(email)
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		_, _ = s.accounts.update(a.UserID, func(a *account) error {
			a.EmailVerified = true
			if a.Status == users.StatusPending {
				a.Status = users.StatusActive
			}
			return nil
		})
		w.WriteHeader(http.StatusOK)
	}
}

// ForgotPasswordHandler answers 200 whether or not the email is known.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.ForgotPasswordRequest
		if !decode(w, r, &req) {
			return
		}
		if _, err := s.accounts.byEmail(req.Email); err == nil {
			s.issueEmailToken(s.resets, req.Email)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.ResetPasswordRequest
		if !decode(w, r, &req) {
			return
		}
		if req.NewPassword != req.ConfirmPassword {
			writeError(w, http.StatusBadRequest, "Passwords do not match")
			return
		}
		email, ok := s.consumeEmailToken(s.resets, req.Token)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
			return
		}
		a, err := s.accounts.byEmail(email)
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		_, _ = s.accounts.update(a.UserID, func(a *account) error {
			a.PasswordHash = hashPassword(req.NewPassword)
			return nil
		})
		s.issuer.revokeUser(a.UserID)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) ResendVerificationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.ResendVerificationEmailRequest
		if !decode(w, r, &req) {
			return
		}
		a, err := s.accounts.byEmail(req.Email)
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		if a.EmailVerified {
			writeError(w, http.StatusConflict, "Email address is already verified")
			return
		}
		s.issueEmailToken(s.verifications, req.Email)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) CompleteRegistrationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req auth.CompleteRegistrationRequest
		if !decode(w, r, &req) {
			return
		}
		email, ok := s.consumeEmailToken(s.invites, req.Token)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid or expired registration token")
			return
		}
		a, err := s.accounts.byEmail(email)
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		_, _ = s.accounts.update(a.UserID, func(a *account) error {
			a.FirstName = req.FirstName
			a.LastName = req.LastName
			a.Phone = req.Phone
			a.DateOfBirth = req.DateOfBirth
			a.EmailVerified = true
			a.Status = users.StatusActive
			return nil
		})
		w.WriteHeader(http.StatusOK)
	}
}

// Echo is the body answered by RouteEcho and RouteEchoPost.
type Echo struct {
	Authorization string `json:"authorization"`
	RequestID     string `json:"requestId"`
	Body          string `json:"body,omitempty"`
}

func (s *Server) EchoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusOK, Echo{
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          string(body),
		})
	}
}
