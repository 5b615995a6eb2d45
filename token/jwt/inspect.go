package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/librahub-admin/internal/utils"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var ErrOpaqueToken = errors.New("token is not a JWT")

// Claims is what the client can read out of an access token without the
// signing key. None of it is trusted; the server decides validity.
type Claims struct {
	Subject   string    `json:"sub,omitempty"`
	Email     string    `json:"email,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

// Expired reports whether the exp claim is in the past. Tokens without exp
// never expire client-side.
func (c Claims) Expired() bool {
	return !c.ExpiresAt.IsZero() && NowTimeFunc().After(c.ExpiresAt)
}

// Inspect parses rawToken without verifying its signature.
func Inspect(rawToken string) (Claims, error) {
	if strings.Count(rawToken, ".") != 2 {
		return Claims{}, ErrOpaqueToken
	}

	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("[jwt Inspect] failed to parse token: %w", err)
	}

	claims, ok := unverified.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, errors.New("[jwt Inspect] error extracting claims")
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)

	var roles []string
	if claimRoles, ok := claims["roles"].([]any); ok {
		roles = utils.ToStringSlice(claimRoles)
	}

	c := Claims{Subject: sub, Email: email, Roles: roles}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
