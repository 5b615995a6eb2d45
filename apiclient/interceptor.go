package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/routes"
	"github.com/jrsteele09/librahub-admin/session"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// PathRefresh is excluded from refresh-and-replay so a rejected refresh can't
// recurse.
const PathRefresh = "/auth/refresh"

// Refresher exchanges a refresh token for a new pair without going through the
// interceptor.
type Refresher func(ctx context.Context, refreshToken string) (token.Pair, error)

// refreshTransport attaches the durable access token to every request and
// recovers from one 401 per request by renewing the token and replaying.
//
// The renewal here reads the durable refresh token directly instead of calling
// the session gateway's Refresh, so it never re-enters the request pipeline.
type refreshTransport struct {
	next      http.RoundTripper
	tokens    durable.Storage
	store     *session.Store
	navigator routes.Navigator
	refresher Refresher
	metrics   *Metrics

	// group is nil unless refresh dedupe is enabled; then concurrent 401s
	// share one renewal call.
	group *singleflight.Group
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req = req.Clone(ctx)

	if req.Header.Get("Authorization") == "" {
		access, err := durable.AccessToken(ctx, t.tokens)
		if err != nil {
			log.Warn().Err(err).Msg("Interceptor: could not read access token")
		} else if access != "" {
			token.Bearer(access).SetAuthHeader(req)
		}
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || refreshDisabled(ctx) || isRefreshCall(req) {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		log.Debug().Str("path", req.URL.Path).Msg("Interceptor: body can't be replayed, returning 401")
		return resp, nil
	}

	access, err := t.renew(ctx)
	if err != nil {
		if keepsSession(ctx, err) {
			drain(resp)
			return nil, fmt.Errorf("[refreshTransport] %s: %w: %w", req.URL.Path, apperrors.ErrAuthorizationExpired, err)
		}
		return resp, nil
	}
	drain(resp)

	// The replay goes straight to next, so it is retried at most once.
	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("[refreshTransport] rewinding body: %w", err)
		}
		retry.Body = body
	}
	token.Bearer(access).SetAuthHeader(retry)
	return t.next.RoundTrip(retry)
}

// renew returns a fresh access token or tears the session down. Network
// failures leave the session as it was.
func (t *refreshTransport) renew(ctx context.Context) (string, error) {
	if t.group == nil {
		return t.doRenew(ctx)
	}
	v, err, _ := t.group.Do("refresh", func() (any, error) {
		return t.doRenew(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (t *refreshTransport) doRenew(ctx context.Context) (string, error) {
	refreshToken, err := durable.RefreshToken(ctx, t.tokens)
	if err != nil {
		t.metrics.refresh(RefreshStorage)
		log.Warn().Err(err).Msg("Interceptor: could not read refresh token, keeping session")
		return "", err
	}
	if refreshToken == "" {
		t.metrics.refresh(RefreshNoToken)
		t.teardown(ctx)
		return "", apperrors.ErrNoRefreshToken
	}

	pair, err := t.refresher(ctx, refreshToken)
	if err == nil {
		err = pair.Validate()
	}
	if err != nil {
		if keepsSession(ctx, err) {
			t.metrics.refresh(RefreshNetwork)
			log.Warn().Err(err).Msg("Interceptor: token refresh unreachable, keeping session")
			return "", err
		}
		t.metrics.refresh(RefreshRejected)
		log.Info().Err(err).Msg("Interceptor: token refresh rejected, ending session")
		t.teardown(ctx)
		return "", err
	}

	if pair.RefreshToken != "" {
		refreshToken = pair.RefreshToken
	}
	renewed := token.Pair{
		AccessToken:  pair.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    pair.ExpiresAt,
	}
	if err := durable.SaveTokens(ctx, t.tokens, renewed); err != nil {
		t.metrics.refresh(RefreshStorage)
		log.Warn().Err(err).Msg("Interceptor: could not persist renewed tokens, keeping session")
		return "", err
	}

	// Keep the in-memory copy in lockstep when there is a session to update.
	if t.store != nil {
		if user := t.store.User(); user != nil {
			t.store.SetCredentials(*user, renewed)
		}
	}

	t.metrics.refresh(RefreshSucceeded)
	return pair.AccessToken, nil
}

// teardown ends the session without touching the store's error field; nobody
// is waiting on a background refresh.
func (t *refreshTransport) teardown(ctx context.Context) {
	t.metrics.teardown()
	if err := durable.ClearTokens(ctx, t.tokens); err != nil {
		log.Warn().Err(err).Msg("Interceptor: could not erase tokens")
	}
	if t.store != nil {
		t.store.Logout()
	}
	if t.navigator != nil {
		t.navigator.Navigate(routes.RouteUnauthenticated)
	}
}

// keepsSession reports whether a renewal failure says nothing about the
// credentials: the server or token storage was unreachable, or the caller
// gave up.
func keepsSession(ctx context.Context, err error) bool {
	return errors.Is(err, apperrors.ErrNetworkUnavailable) ||
		errors.Is(err, apperrors.ErrStorageUnavailable) ||
		ctx.Err() != nil
}

func isRefreshCall(req *http.Request) bool {
	return strings.Contains(req.URL.Path, PathRefresh)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
