package token

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

const bearerType = "Bearer"

// Pair is the credential pair returned by POST /auth/login and /auth/refresh.
// It is applied to the session as a whole, never field by field.
type Pair struct {
	// AccessToken is the short-lived bearer credential.
	// Usage: "Authorization: Bearer <accessToken>" on every API call
	AccessToken string `json:"accessToken"`

	// RefreshToken is exchanged at /auth/refresh for a new pair.
	// Empty when a session was restored from an access token alone.
	RefreshToken string `json:"refreshToken"`

	// ExpiresAt is the server's RFC 3339 expiry hint for AccessToken.
	// Empty for restored sessions.
	ExpiresAt string `json:"expiresAt"`
}

var ErrMissingAccessToken = errors.New("token pair has no access token")

// Validate rejects a pair that can't authenticate anything.
func (p Pair) Validate() error {
	if p.AccessToken == "" {
		return ErrMissingAccessToken
	}
	return nil
}

// Expiry parses ExpiresAt. ok is false when it's empty or malformed.
func (p Pair) Expiry() (t time.Time, ok bool) {
	if p.ExpiresAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// OAuth2 converts the pair into an oauth2.Token so the standard header helpers
// can be used.
func (p Pair) OAuth2() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    bearerType,
		RefreshToken: p.RefreshToken,
	}
	if exp, ok := p.Expiry(); ok {
		t.Expiry = exp
	}
	return t
}

// Bearer wraps a raw access token for header use.
func Bearer(accessToken string) *oauth2.Token {
	return &oauth2.Token{AccessToken: accessToken, TokenType: bearerType}
}
