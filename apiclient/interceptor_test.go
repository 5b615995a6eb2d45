package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/librahub-admin/apiclient"
	"github.com/jrsteele09/librahub-admin/internal/apitest"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/routes"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterceptor_AttachesStoredAccessToken(t *testing.T) {
	f := setupTestFixture(t)
	pair := f.login(t)

	var echo apitest.Echo
	require.NoError(t, f.client.Get(context.Background(), "/echo", &echo))
	require.Equal(t, "Bearer "+pair.AccessToken, echo.Authorization)
	require.NotEmpty(t, echo.RequestID)
	require.Equal(t, 0, f.api.Calls(apitest.RouteRefresh))
}

func TestInterceptor_NoStoredTokenSendsNoHeader(t *testing.T) {
	f := setupTestFixture(t)

	err := f.client.Get(context.Background(), "/echo", nil)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))

	req, ok := f.api.LastRequest(apitest.RouteEcho)
	require.True(t, ok)
	require.Empty(t, req.Authorization())
}

func TestInterceptor_ExplicitAuthorizationWins(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	other, err := f.api.Issue(f.user.UserID)
	require.NoError(t, err)

	var echo apitest.Echo
	require.NoError(t, f.client.Get(context.Background(), "/echo", &echo, apiclient.WithAuthorization(other.AccessToken)))
	require.Equal(t, "Bearer "+other.AccessToken, echo.Authorization)
}

// One 401 with a valid refresh token: one refresh, one replay, and the caller
// sees the replayed response.
func TestInterceptor_RefreshAndReplay(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)
	f.api.QueueTokens(token.Pair{AccessToken: "AT2", RefreshToken: "RT2"})

	var echo apitest.Echo
	require.NoError(t, f.client.Get(context.Background(), "/echo", &echo))

	require.Equal(t, "Bearer AT2", echo.Authorization)
	require.Equal(t, 1, f.api.Calls(apitest.RouteRefresh))
	require.Equal(t, 2, f.api.Calls(apitest.RouteEcho))

	access, _ := f.storedToken(t, durable.KeyAccessToken)
	refresh, _ := f.storedToken(t, durable.KeyRefreshToken)
	require.Equal(t, "AT2", access)
	require.Equal(t, "RT2", refresh)

	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, "AT2", f.store.AccessToken())
	require.Equal(t, "RT2", f.store.RefreshToken())
	require.Empty(t, f.navigator.Paths())

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshCount(apiclient.RefreshSucceeded)))
	require.Equal(t, 0.0, testutil.ToFloat64(f.metrics.TeardownCount()))
}

func TestInterceptor_ReplayKeepsRequestID(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, false)
	f.api.SeedRefreshToken("RT1", f.user.UserID)

	var echo apitest.Echo
	require.NoError(t, f.client.Get(context.Background(), "/echo", &echo, apiclient.WithHeader(apiclient.HeaderRequestID, "req-42")))
	require.Equal(t, "req-42", echo.RequestID)
}

// Without a user in the store the durable copy is still renewed.
func TestInterceptor_RefreshWithoutStoreUser(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, false)
	f.api.SeedRefreshToken("RT1", f.user.UserID)
	f.api.QueueTokens(token.Pair{AccessToken: "AT2"})

	require.NoError(t, f.client.Get(context.Background(), "/echo", nil))

	access, _ := f.storedToken(t, durable.KeyAccessToken)
	refresh, _ := f.storedToken(t, durable.KeyRefreshToken)
	require.Equal(t, "AT2", access)
	require.Equal(t, "RT1", refresh, "refresh token kept when the server does not rotate it")
	require.False(t, f.store.IsAuthenticated())
}

func TestInterceptor_ReplaysBody(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)

	var echo apitest.Echo
	require.NoError(t, f.client.Post(context.Background(), "/echo", map[string]string{"title": "Dune"}, &echo))
	require.JSONEq(t, `{"title":"Dune"}`, echo.Body)
	require.Equal(t, 2, f.api.Calls(apitest.RouteEchoPost))
}

// A 401 with no refresh token tears the session down without calling refresh.
func TestInterceptor_NoRefreshTokenTearsDown(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.tokens.Set(context.Background(), durable.KeyAccessToken, "EXPIRED"))
	f.store.SetCredentials(f.user, token.Pair{AccessToken: "EXPIRED"})

	err := f.client.Get(context.Background(), "/echo", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, apperrors.ErrAuthenticationRejected))
	require.Equal(t, "Invalid or expired token", apiclient.MessageOr(err, ""))

	require.Equal(t, 0, f.api.Calls(apitest.RouteRefresh))
	require.Equal(t, 1, f.api.Calls(apitest.RouteEcho))
	require.Empty(t, f.tokens.Keys())
	require.False(t, f.store.IsAuthenticated())
	require.Nil(t, f.store.User())
	require.Equal(t, []string{routes.RouteUnauthenticated}, f.navigator.Paths())

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshCount(apiclient.RefreshNoToken)))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TeardownCount()))
}

// The refresh endpoint itself rejecting RT1 ends in a fully empty session.
func TestInterceptor_RefreshRejectedTearsDown(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)

	err := f.client.Get(context.Background(), "/echo", nil)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))

	require.Equal(t, 1, f.api.Calls(apitest.RouteRefresh))
	require.Equal(t, 1, f.api.Calls(apitest.RouteEcho))

	state := f.store.Snapshot()
	require.Nil(t, state.User)
	require.Nil(t, state.AccessToken)
	require.Nil(t, state.RefreshToken)
	require.False(t, state.IsAuthenticated)
	require.Nil(t, state.Error, "background refresh never sets the store error")
	require.Empty(t, f.tokens.Keys())
	require.Equal(t, routes.RouteUnauthenticated, f.navigator.Last())

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshCount(apiclient.RefreshRejected)))
}

func TestInterceptor_SecondFailureSurfaced(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)
	f.api.QueueTokens(token.Pair{AccessToken: "AT2", RefreshToken: "RT2"})
	f.api.FailNext(apitest.RouteEcho, http.StatusUnauthorized, "first")
	f.api.FailNext(apitest.RouteEcho, http.StatusUnauthorized, "second")

	err := f.client.Get(context.Background(), "/echo", nil)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
	require.Equal(t, "second", apiclient.MessageOr(err, ""))

	require.Equal(t, 1, f.api.Calls(apitest.RouteRefresh))
	require.Equal(t, 2, f.api.Calls(apitest.RouteEcho))

	// The renewal itself worked, so the session stays.
	access, _ := f.storedToken(t, durable.KeyAccessToken)
	require.Equal(t, "AT2", access)
	require.True(t, f.store.IsAuthenticated())
	require.Empty(t, f.navigator.Paths())
}

func TestInterceptor_RefreshCallNeverRefreshes(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)

	err := f.client.Post(context.Background(), apiclient.PathRefresh, map[string]string{"refreshToken": "bogus"}, nil)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
	require.Equal(t, 1, f.api.Calls(apitest.RouteRefresh))
	require.True(t, f.store.IsAuthenticated())
	require.True(t, f.api.RefreshTokenValid("RT1"))
}

func TestInterceptor_WithoutRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)

	err := f.client.Get(apiclient.WithoutRefresh(context.Background()), "/echo", nil)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
	require.Equal(t, 0, f.api.Calls(apitest.RouteRefresh))

	access, _ := f.storedToken(t, durable.KeyAccessToken)
	require.Equal(t, "EXPIRED", access)
	require.True(t, f.store.IsAuthenticated())
}

// An unreachable refresh endpoint leaves the session alone.
func TestInterceptor_RefreshNetworkFailureKeepsSession(t *testing.T) {
	down := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.URL.Path, apiclient.PathRefresh) {
			return nil, errors.New("connection refused")
		}
		return http.DefaultTransport.RoundTrip(r)
	})
	f := setupTestFixture(t, apiclient.WithTransport(down))
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)

	err := f.client.Get(context.Background(), "/echo", nil)
	require.ErrorIs(t, err, apperrors.ErrNetworkUnavailable)
	require.ErrorIs(t, err, apperrors.ErrAuthorizationExpired)
	require.Zero(t, apiclient.StatusCode(err))

	access, ok := f.storedToken(t, durable.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, "EXPIRED", access)
	require.True(t, f.store.IsAuthenticated())
	require.Empty(t, f.navigator.Paths())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshCount(apiclient.RefreshNetwork)))
}

// A refresh token that can't be read is a storage fault, not a rejection.
func TestInterceptor_UnreadableRefreshTokenKeepsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)
	client := f.clientOver(&faultyStorage{Storage: f.tokens, failGet: durable.KeyRefreshToken})

	err := client.Get(context.Background(), "/echo", nil)
	require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	require.ErrorIs(t, err, apperrors.ErrAuthorizationExpired)
	require.NotErrorIs(t, err, apperrors.ErrNetworkUnavailable)
	require.Zero(t, apiclient.StatusCode(err))
	require.Equal(t, 0, f.api.Calls(apitest.RouteRefresh))

	access, ok := f.storedToken(t, durable.KeyAccessToken)
	require.True(t, ok)
	require.Equal(t, "EXPIRED", access)
	require.True(t, f.store.IsAuthenticated())
	require.Empty(t, f.navigator.Paths())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RefreshCount(apiclient.RefreshStorage)))
	require.Zero(t, testutil.ToFloat64(f.metrics.TeardownCount()))
}

// Renewed tokens that can't be saved are not used: the stored pair and the
// store both keep the old pair and the request is not replayed.
func TestInterceptor_UnsavedRenewalIsNotApplied(t *testing.T) {
	f := setupTestFixture(t)
	old := token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}
	f.storeTokens(t, old, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)
	f.api.QueueTokens(token.Pair{AccessToken: "AT2", RefreshToken: "RT2"})
	client := f.clientOver(&faultyStorage{Storage: f.tokens, failSet: durable.KeyRefreshToken})

	err := client.Get(context.Background(), "/echo", nil)
	require.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
	require.Equal(t, 1, f.api.Calls(apitest.RouteRefresh))
	require.Equal(t, 1, f.api.Calls(apitest.RouteEcho))

	access, _ := f.storedToken(t, durable.KeyAccessToken)
	refresh, _ := f.storedToken(t, durable.KeyRefreshToken)
	require.Equal(t, old.AccessToken, access)
	require.Equal(t, old.RefreshToken, refresh)
	require.Equal(t, old.AccessToken, f.store.AccessToken())
	require.True(t, f.store.IsAuthenticated())
	require.Empty(t, f.navigator.Paths())
}

// gatedRefresh holds every refresh call until release is closed.
func gatedRefresh(arrived *atomic.Int32, release <-chan struct{}) apiclient.Option {
	return apiclient.WithTransport(roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if strings.HasSuffix(r.URL.Path, apiclient.PathRefresh) {
			arrived.Add(1)
			<-release
		}
		return http.DefaultTransport.RoundTrip(r)
	}))
}

func runConcurrent(t *testing.T, n int, fn func() error) []error {
	t.Helper()
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn()
		}()
	}
	wg.Wait()
	return errs
}

// Without dedupe every request that hits a 401 runs its own refresh.
func TestInterceptor_ConcurrentRefreshesAreIndependent(t *testing.T) {
	const n = 4
	var arrived atomic.Int32
	release := make(chan struct{})
	f := setupTestFixture(t, gatedRefresh(&arrived, release))
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)

	go func() {
		assert.Eventually(t, func() bool { return arrived.Load() == n }, 5*time.Second, 5*time.Millisecond)
		close(release)
	}()
	runConcurrent(t, n, func() error {
		return f.client.Get(context.Background(), "/echo", nil)
	})

	require.Equal(t, n, f.api.Calls(apitest.RouteRefresh))
}

func TestInterceptor_RefreshDedupe(t *testing.T) {
	const n = 4
	var arrived atomic.Int32
	release := make(chan struct{})
	f := setupTestFixture(t, apiclient.WithRefreshDedupe(), gatedRefresh(&arrived, release))
	f.storeTokens(t, token.Pair{AccessToken: "EXPIRED", RefreshToken: "RT1"}, true)
	f.api.SeedRefreshToken("RT1", f.user.UserID)
	f.api.QueueTokens(token.Pair{AccessToken: "AT2", RefreshToken: "RT2"})

	go func() {
		// Hold the one refresh until every request has seen its 401.
		assert.Eventually(t, func() bool { return f.api.Calls(apitest.RouteEcho) == n }, 5*time.Second, 5*time.Millisecond)
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()
	errs := runConcurrent(t, n, func() error {
		return f.client.Get(context.Background(), "/echo", nil)
	})

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.api.Calls(apitest.RouteRefresh))
	require.Equal(t, 2*n, f.api.Calls(apitest.RouteEcho))
	require.Equal(t, "AT2", f.store.AccessToken())
}
