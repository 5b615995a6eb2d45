package apitest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	defaultAccessTTL = 15 * time.Minute
	issuerName       = "librahub-fake"
)

var errTokenRejected = errors.New("token rejected")

// issuer hands out and checks the fake's credentials. Access tokens are HS256
// JWTs unless a test queued fixed values; refresh tokens are opaque and
// rotate on every use.
type issuer struct {
	secret []byte

	mu      sync.Mutex
	ttl     time.Duration
	access  map[string]string // access token to user id
	refresh map[string]string // refresh token to user id
	revoked map[string]bool
	queued  []token.Pair
}

func newIssuer() *issuer {
	return &issuer{
		secret:  []byte(uuid.NewString()),
		ttl:     defaultAccessTTL,
		access:  make(map[string]string),
		refresh: make(map[string]string),
		revoked: make(map[string]bool),
	}
}

func (is *issuer) setTTL(ttl time.Duration) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.ttl = ttl
}

func (is *issuer) queue(pairs ...token.Pair) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.queued = append(is.queued, pairs...)
}

// issue creates the next pair for user.
func (is *issuer) issue(user users.User) (token.Pair, error) {
	is.mu.Lock()
	defer is.mu.Unlock()

	var pair token.Pair
	if len(is.queued) > 0 {
		pair = is.queued[0]
		is.queued = is.queued[1:]
	} else {
		now := NowTimeFunc()
		exp := now.Add(is.ttl)
		access, err := is.signAccessToken(user, now, exp)
		if err != nil {
			return token.Pair{}, err
		}
		pair = token.Pair{
			AccessToken:  access,
			RefreshToken: uuid.NewString(),
			ExpiresAt:    exp.UTC().Format(time.RFC3339),
		}
	}

	is.access[pair.AccessToken] = user.UserID
	if pair.RefreshToken != "" {
		is.refresh[pair.RefreshToken] = user.UserID
	}
	return pair, nil
}

func (is *issuer) signAccessToken(user users.User, now, exp time.Time) (string, error) {
	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, string(r))
	}
	claims := jwtlib.MapClaims{
		"iss":   issuerName,       // The issuer of the token
		"sub":   user.UserID,      // The user the token was issued to
		"email": user.Email,       // Convenience copy of the login email
		"roles": roles,            // Authorization levels at issue time
		"iat":   now.Unix(),       // Issued At
		"exp":   exp.Unix(),       // Expiry
		"jti":   uuid.NewString(), // Unique token ID for revocation
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(is.secret)
	if err != nil {
		return "", fmt.Errorf("[apitest signAccessToken] failed to sign token: %w", err)
	}
	return signed, nil
}

// userFor returns the user id an access token was issued to.
func (is *issuer) userFor(accessToken string) (string, error) {
	is.mu.Lock()
	userID, ok := is.access[accessToken]
	revoked := is.revoked[accessToken]
	is.mu.Unlock()
	if !ok || revoked {
		return "", errTokenRejected
	}

	// Fixed test values are opaque; signed tokens must also be unexpired.
	if strings.Count(accessToken, ".") != 2 {
		return userID, nil
	}
	_, err := jwtlib.Parse(accessToken, func(t *jwtlib.Token) (any, error) {
		return is.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(NowTimeFunc))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errTokenRejected, err)
	}
	return userID, nil
}

// rotate consumes refreshToken and returns the user it belonged to.
func (is *issuer) rotate(refreshToken string) (string, error) {
	is.mu.Lock()
	defer is.mu.Unlock()
	userID, ok := is.refresh[refreshToken]
	if !ok {
		return "", errTokenRejected
	}
	delete(is.refresh, refreshToken)
	return userID, nil
}

func (is *issuer) revoke(accessToken string) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.revoked[accessToken] = true
}

// revokeUser drops every credential held by userID.
func (is *issuer) revokeUser(userID string) {
	is.mu.Lock()
	defer is.mu.Unlock()
	for tok, id := range is.access {
		if id == userID {
			is.revoked[tok] = true
		}
	}
	for tok, id := range is.refresh {
		if id == userID {
			delete(is.refresh, tok)
		}
	}
}

func (is *issuer) refreshTokenValid(refreshToken string) bool {
	is.mu.Lock()
	defer is.mu.Unlock()
	_, ok := is.refresh[refreshToken]
	return ok
}

// Issue logs userID in without going through /auth/login.
func (s *Server) Issue(userID string) (token.Pair, error) {
	a, err := s.accounts.byID(userID)
	if err != nil {
		return token.Pair{}, err
	}
	return s.issuer.issue(a.User)
}

// SeedRefreshToken makes refreshToken valid for userID.
func (s *Server) SeedRefreshToken(refreshToken, userID string) {
	s.issuer.mu.Lock()
	defer s.issuer.mu.Unlock()
	s.issuer.refresh[refreshToken] = userID
}

// Expire makes accessToken fail authentication from now on.
func (s *Server) Expire(accessToken string) {
	s.issuer.revoke(accessToken)
}

// RefreshTokenValid reports whether refreshToken can still be exchanged.
func (s *Server) RefreshTokenValid(refreshToken string) bool {
	return s.issuer.refreshTokenValid(refreshToken)
}

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// RequireAuth checks the bearer token and, when roles are given, that the
// caller holds one of them.
func (s *Server) RequireAuth(roles ...users.RoleType) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
				writeError(w, http.StatusUnauthorized, "Missing or malformed Authorization header")
				return
			}

			userID, err := s.issuer.userFor(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			a, err := s.accounts.byID(userID)
			if err != nil || a.Status == users.StatusDisabled {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			if len(roles) > 0 && !a.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyUserID, userID)))
		}
	}
}

func callerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUserID).(string)
	return id
}
