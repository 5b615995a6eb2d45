package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/librahub-admin/apiclient"
	"github.com/jrsteele09/librahub-admin/internal/apitest"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestClient_QueryAndBasePath(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	q := url.Values{}
	q.Set("page", "2")
	err := f.client.Get(context.Background(), "/echo", nil, apiclient.WithQuery(q))
	require.NoError(t, err)

	req, ok := f.api.LastRequest(apitest.RouteEcho)
	require.True(t, ok)
	require.Equal(t, "2", req.Query.Get("page"))
	require.True(t, strings.HasSuffix(f.client.BaseURL(), apitest.BasePath))
}

func TestClient_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   error
	}{
		{name: "bad request", status: http.StatusBadRequest, kind: apperrors.ErrValidationRejected},
		{name: "conflict", status: http.StatusConflict, kind: apperrors.ErrValidationRejected},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, kind: apperrors.ErrValidationRejected},
		{name: "forbidden", status: http.StatusForbidden, kind: apperrors.ErrAuthenticationRejected},
		{name: "not found", status: http.StatusNotFound, kind: apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.login(t)
			f.api.FailNext(apitest.RouteEcho, tt.status, "nope")

			err := f.client.Get(context.Background(), "/echo", nil)
			require.ErrorIs(t, err, tt.kind)
			require.Equal(t, tt.status, apiclient.StatusCode(err))

			msg, ok := apiclient.Message(err)
			require.True(t, ok)
			require.Equal(t, "nope", msg)
		})
	}
}

func TestClient_ErrorWithoutBody(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.FailNext(apitest.RouteEcho, http.StatusInternalServerError, "")

	err := f.client.Get(context.Background(), "/echo", nil)
	require.Equal(t, http.StatusInternalServerError, apiclient.StatusCode(err))
	require.Equal(t, "fallback", apiclient.MessageOr(err, "fallback"))
	require.False(t, errors.Is(err, apperrors.ErrValidationRejected))
}

func TestClient_UnreachableAPI(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.api.Close()

	err := f.client.Get(context.Background(), "/echo", nil)
	require.ErrorIs(t, err, apperrors.ErrNetworkUnavailable)
	require.True(t, f.store.IsAuthenticated())
}

func TestClient_CancelledContextIsNotNetworkFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.client.Get(ctx, "/echo", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, apperrors.ErrNetworkUnavailable))
}

func TestClient_RateLimit(t *testing.T) {
	f := setupTestFixture(t, apiclient.WithRateLimit(0.01, 1))
	f.login(t)

	require.NoError(t, f.client.Get(context.Background(), "/echo", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.client.Get(ctx, "/echo", nil)
	require.Error(t, err)
	require.Equal(t, 1, f.api.Calls(apitest.RouteEcho))
}

func TestClient_InvalidJSONResponse(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	var out []int
	err := f.client.Get(context.Background(), "/echo", &out)
	require.ErrorIs(t, err, apperrors.ErrInvalidResponse)
}

func TestChainTransport_Order(t *testing.T) {
	var order []string
	tag := func(name string) func(http.RoundTripper) http.RoundTripper {
		return func(next http.RoundTripper) http.RoundTripper {
			return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	base := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
	})

	rt := apiclient.ChainTransport(base, tag("first"), tag("second"))
	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "base"}, order)
}
