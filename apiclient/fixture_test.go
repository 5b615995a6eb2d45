package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jrsteele09/librahub-admin/apiclient"
	"github.com/jrsteele09/librahub-admin/internal/apitest"
	"github.com/jrsteele09/librahub-admin/routes"
	"github.com/jrsteele09/librahub-admin/session"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/jrsteele09/librahub-admin/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "reader@librahub.test"
	testPassword = "Secret123"
)

type testFixture struct {
	api       *apitest.Server
	tokens    *durable.Memory
	store     *session.Store
	navigator *routes.RecordingNavigator
	metrics   *apiclient.Metrics
	client    *apiclient.Client
	user      users.User
}

func setupTestFixture(t *testing.T, opts ...apiclient.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		api:       apitest.New(t),
		tokens:    durable.NewMemory(),
		store:     session.NewStore(),
		navigator: &routes.RecordingNavigator{},
		metrics:   apiclient.NewMetrics(prometheus.NewRegistry()),
	}
	f.user = f.api.AddUser(testEmail, testPassword, users.RoleUser)

	opts = append([]apiclient.Option{
		apiclient.WithNavigator(f.navigator),
		apiclient.WithMetrics(f.metrics),
	}, opts...)
	f.client = apiclient.New(f.api.URL(), f.tokens, f.store, opts...)
	return f
}

// storeTokens puts a pair in durable storage and, with a user, in the store.
func (f *testFixture) storeTokens(t *testing.T, pair token.Pair, withUser bool) {
	t.Helper()
	require.NoError(t, durable.SaveTokens(context.Background(), f.tokens, pair))
	if withUser {
		f.store.SetCredentials(f.user, pair)
	}
}

// login issues a valid pair for the fixture user and stores it.
func (f *testFixture) login(t *testing.T) token.Pair {
	t.Helper()
	pair, err := f.api.Issue(f.user.UserID)
	require.NoError(t, err)
	f.storeTokens(t, pair, true)
	return pair
}

func (f *testFixture) storedToken(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.tokens.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}

var errDiskFull = errors.New("disk full")

// faultyStorage fails reads of failGet and writes of failSet. It embeds the
// interface, so it has no SetMany and saves go key by key.
type faultyStorage struct {
	durable.Storage
	failGet string
	failSet string
}

func (s *faultyStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if key == s.failGet {
		return "", false, errDiskFull
	}
	return s.Storage.Get(ctx, key)
}

func (s *faultyStorage) Set(ctx context.Context, key, value string) error {
	if key == s.failSet {
		return errDiskFull
	}
	return s.Storage.Set(ctx, key, value)
}

// clientOver builds a second client on the fixture's API, store and
// metrics, reading tokens from tokens.
func (f *testFixture) clientOver(tokens durable.Storage) *apiclient.Client {
	return apiclient.New(f.api.URL(), tokens, f.store,
		apiclient.WithNavigator(f.navigator),
		apiclient.WithMetrics(f.metrics),
	)
}
