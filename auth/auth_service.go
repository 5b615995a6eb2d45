// Package auth is the session gateway: the operations that create, renew and
// destroy the client session against the LibraHub API.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/librahub-admin/apiclient"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/session"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/jrsteele09/librahub-admin/users"
	"github.com/rs/zerolog/log"
)

// Service orchestrates the network calls that change session state. It keeps
// the session store and durable token storage in step.
//
// Renewal triggered by a 401 on an arbitrary request does not come through
// here; the apiclient interceptor has its own path so it never re-enters the
// request pipeline.
type Service struct {
	client *apiclient.Client
	store  *session.Store
	tokens durable.Storage
}

// New creates the gateway over an intercepted client. All three dependencies
// are required.
func New(client *apiclient.Client, store *session.Store, tokens durable.Storage) (*Service, error) {
	if client == nil {
		return nil, errors.New("[auth New] client is required")
	}
	if store == nil {
		return nil, errors.New("[auth New] store is required")
	}
	if tokens == nil {
		return nil, errors.New("[auth New] token storage is required")
	}
	return &Service{
		client: client,
		store:  store,
		tokens: tokens,
	}, nil
}

// Initialize restores the session from durable storage once per application
// load. With no stored access token it returns (nil, nil) without network I/O.
// A stored token the server rejects ends the session; it is not renewed here.
// When the API can't be reached, storage can't be read or ctx ends first, the
// stored tokens are kept for the next attempt.
func (s *Service) Initialize(ctx context.Context) (*Session, error) {
	accessToken, err := durable.AccessToken(ctx, s.tokens)
	if err != nil {
		log.Warn().Err(err).Msg("Initialize: reading stored access token")
		s.store.SetLoading(false)
		s.store.SetError(SessionUnavailableMsg)
		return nil, fmt.Errorf("[auth Initialize] %w", err)
	}
	if accessToken == "" {
		s.store.SetLoading(false)
		return nil, nil
	}

	s.store.SetLoading(true)
	defer s.store.SetLoading(false)

	user, err := s.profile(ctx, accessToken)
	if err != nil {
		if keepsSession(ctx, err) {
			log.Warn().Err(err).Msg("Initialize: API unreachable, keeping stored tokens")
			s.store.SetError(SessionUnavailableMsg)
			return nil, fmt.Errorf("[auth Initialize] %w", err)
		}
		log.Info().Err(err).Msg("Initialize: stored session rejected")
		s.endSession(ctx)
		return nil, fmt.Errorf("[auth Initialize] %w", err)
	}

	// A missing refresh token becomes "", not an absent value.
	refreshToken, err := durable.RefreshToken(ctx, s.tokens)
	if err != nil {
		log.Warn().Err(err).Msg("Initialize: reading stored refresh token")
		s.store.SetError(SessionUnavailableMsg)
		return nil, fmt.Errorf("[auth Initialize] %w", err)
	}
	tokens := token.Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    "",
	}
	s.store.SetCredentials(*user, tokens)
	return &Session{User: *user, Tokens: tokens}, nil
}

// Login exchanges credentials for a token pair and loads the profile. On any
// failure the store keeps its previous user and tokens and its error field
// holds the message to show.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	s.store.SetLoading(true)
	s.store.ClearError()
	defer s.store.SetLoading(false)

	if err := validateRequest(req); err != nil {
		return nil, s.fail("Login", err, LoginFailedMsg)
	}

	var tokens token.Pair
	if err := s.client.Post(apiclient.WithoutRefresh(ctx), PathLogin, req, &tokens); err != nil {
		return nil, s.fail("Login", err, LoginFailedMsg)
	}
	if err := tokens.Validate(); err != nil {
		return nil, s.fail("Login", fmt.Errorf("%w: %w", apperrors.ErrInvalidResponse, err), LoginFailedMsg)
	}

	user, err := s.profile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, s.fail("Login", err, LoginFailedMsg)
	}

	// Durable storage first: the store never holds a pair that wasn't saved.
	if err := durable.SaveTokens(ctx, s.tokens, tokens); err != nil {
		return nil, s.fail("Login", err, LoginFailedMsg)
	}
	s.store.SetCredentials(*user, tokens)

	log.Info().Str("userId", user.UserID).Msg("Login: session started")
	return &Session{User: *user, Tokens: tokens}, nil
}

// Refresh renews the session with the store's refresh token. Without one it
// fails with ErrNoRefreshToken before any network call. A rejected renewal
// ends the session; an unreachable API or storage fault leaves it as it was
// and sets the store's error.
func (s *Service) Refresh(ctx context.Context) (*token.Pair, error) {
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)

	refreshToken := s.store.RefreshToken()
	if refreshToken == "" {
		s.endSession(ctx)
		return nil, fmt.Errorf("[auth Refresh] %w", ErrNoRefreshToken)
	}

	tokens, user, err := s.renew(ctx, refreshToken)
	if err != nil {
		if keepsSession(ctx, err) {
			log.Warn().Err(err).Msg("Refresh: API unreachable, session kept")
			s.store.SetError(SessionUnavailableMsg)
			return nil, fmt.Errorf("[auth Refresh] %w", err)
		}
		log.Info().Err(err).Msg("Refresh: renewal rejected, ending session")
		s.endSession(ctx)
		return nil, fmt.Errorf("[auth Refresh] %w", err)
	}

	if err := durable.SaveTokens(ctx, s.tokens, tokens); err != nil {
		log.Error().Err(err).Msg("Refresh: persisting renewed tokens, session kept")
		s.store.SetError(SessionUnavailableMsg)
		return nil, fmt.Errorf("[auth Refresh] %w", err)
	}
	s.store.SetCredentials(*user, tokens)
	return &tokens, nil
}

func (s *Service) renew(ctx context.Context, refreshToken string) (token.Pair, *users.User, error) {
	var tokens token.Pair
	err := s.client.Post(ctx, PathRefresh, RefreshRequest{RefreshToken: refreshToken}, &tokens)
	if err != nil {
		return token.Pair{}, nil, err
	}
	if err := tokens.Validate(); err != nil {
		return token.Pair{}, nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidResponse, err)
	}
	user, err := s.profile(ctx, tokens.AccessToken)
	if err != nil {
		return token.Pair{}, nil, err
	}
	return tokens, user, nil
}

// Logout ends the session locally. The server is not told.
func (s *Service) Logout(ctx context.Context) error {
	err := durable.ClearTokens(ctx, s.tokens)
	s.store.Logout()
	if err != nil {
		return fmt.Errorf("[auth Logout] %w", err)
	}
	return nil
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	return s.submit(ctx, "Register", PathRegister, req, RegistrationFailedMsg)
}

func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) error {
	return s.submit(ctx, "VerifyEmail", PathVerifyEmail, VerifyEmailRequest{Token: verificationToken}, EmailVerificationFailedMsg)
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	return s.submit(ctx, "ForgotPassword", PathForgotPassword, ForgotPasswordRequest{Email: email}, ForgotPasswordFailedMsg)
}

func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return s.submit(ctx, "ResetPassword", PathResetPassword, req, ResetPasswordFailedMsg)
}

// ResendVerificationEmail returns the confirmation text to display.
func (s *Service) ResendVerificationEmail(ctx context.Context, req ResendVerificationEmailRequest) (string, error) {
	if err := s.submit(ctx, "ResendVerificationEmail", PathResendVerificationEmail, req, ResendVerificationFailedMsg); err != nil {
		return "", err
	}
	return VerificationEmailSentMsg, nil
}

func (s *Service) CompleteRegistration(ctx context.Context, req CompleteRegistrationRequest) error {
	return s.submit(ctx, "CompleteRegistration", PathCompleteRegistration, req, CompleteRegistrationFailedMsg)
}

// submit runs one of the account flows that only need a successful POST.
// These endpoints authenticate by request token, not bearer, so a 401 from
// them never triggers a session refresh.
func (s *Service) submit(ctx context.Context, op, path string, req any, fallback string) error {
	s.store.SetLoading(true)
	s.store.ClearError()
	defer s.store.SetLoading(false)

	if err := validateRequest(req); err != nil {
		return s.fail(op, err, fallback)
	}
	if err := s.client.Post(apiclient.WithoutRefresh(ctx), path, req, nil); err != nil {
		return s.fail(op, err, fallback)
	}
	return nil
}

// profile fetches GET /me for accessToken. The token is sent as given and a
// 401 is returned rather than renewed.
func (s *Service) profile(ctx context.Context, accessToken string) (*users.User, error) {
	var user users.User
	err := s.client.Get(apiclient.WithoutRefresh(ctx), PathMe, &user, apiclient.WithAuthorization(accessToken))
	if err != nil {
		return nil, err
	}
	if user.UserID == "" {
		return nil, fmt.Errorf("[auth profile] %w: profile has no userId", apperrors.ErrInvalidResponse)
	}
	return &user, nil
}

func (s *Service) fail(op string, err error, fallback string) error {
	msg := Message(err, fallback)
	s.store.SetError(msg)
	log.Debug().Err(err).Str("op", op).Msg("auth operation failed")
	return &Error{Op: op, Message: msg, Err: err}
}

// keepsSession reports whether err says nothing about the credentials: the
// API or token storage was unreachable, or the caller gave up.
func keepsSession(ctx context.Context, err error) bool {
	return errors.Is(err, apperrors.ErrNetworkUnavailable) ||
		errors.Is(err, apperrors.ErrStorageUnavailable) ||
		ctx.Err() != nil
}

// endSession erases the durable tokens and clears the store.
func (s *Service) endSession(ctx context.Context) {
	if err := durable.ClearTokens(ctx, s.tokens); err != nil {
		log.Error().Err(err).Msg("erasing session tokens")
	}
	s.store.Logout()
}
