package jwt_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/librahub-admin/token/jwt"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("unknown-to-client"))
	require.NoError(t, err)
	return s
}

func TestInspect(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	jwt.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { jwt.NowTimeFunc = time.Now })

	raw := signed(t, jwtlib.MapClaims{
		"sub":   "u1",
		"email": "a@x.com",
		"roles": []string{"Admin", "User"},
		"iat":   now.Add(-time.Hour).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})

	claims, err := jwt.Inspect(raw)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, "a@x.com", claims.Email)
	require.Equal(t, []string{"Admin", "User"}, claims.Roles)
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	require.False(t, claims.Expired())

	now = now.Add(2 * time.Hour)
	require.True(t, claims.Expired())
}

func TestInspect_OpaqueToken(t *testing.T) {
	_, err := jwt.Inspect("AT1")
	require.ErrorIs(t, err, jwt.ErrOpaqueToken)
}

func TestInspect_Garbage(t *testing.T) {
	_, err := jwt.Inspect("a.b.c")
	require.Error(t, err)
}
