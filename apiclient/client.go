// Package apiclient is the shared HTTP client for the LibraHub API. Every call
// made through a Client passes the session interceptor, which attaches the
// stored bearer token and recovers once from an expired access token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/routes"
	"github.com/jrsteele09/librahub-admin/session"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/jrsteele09/librahub-admin/token/durable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 30 * time.Second

	contentTypeJSON = "application/json"
)

// Client sends requests to the LibraHub API.
type Client struct {
	baseURL string

	http        *http.Client // intercepted
	refreshHTTP *http.Client // plain, used only for interceptor renewals

	limiter *rate.Limiter
	metrics *Metrics
}

type clientOptions struct {
	base      http.RoundTripper
	timeout   time.Duration
	limiter   *rate.Limiter
	metrics   *Metrics
	navigator routes.Navigator
	dedupe    bool
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTransport replaces http.DefaultTransport as the bottom of the chain.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.base = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRateLimit caps outgoing requests at perSecond with the given burst.
// perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *clientOptions) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithNavigator sets where a torn-down session is sent.
func WithNavigator(n routes.Navigator) Option {
	return func(o *clientOptions) { o.navigator = n }
}

// WithRefreshDedupe makes concurrent 401s share a single refresh call instead
// of each renewing independently.
func WithRefreshDedupe() Option {
	return func(o *clientOptions) { o.dedupe = true }
}

// New builds a Client for baseURL. tokens is read on every request; store may
// be nil when no in-memory session is kept.
func New(baseURL string, tokens durable.Storage, store *session.Store, opts ...Option) *Client {
	o := clientOptions{
		base:    http.DefaultTransport,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		limiter: o.limiter,
		metrics: o.metrics,
	}

	c.refreshHTTP = &http.Client{
		Timeout:   o.timeout,
		Transport: ChainTransport(o.base, RequestIDTransport, o.metrics.instrument),
	}

	interceptor := &refreshTransport{
		tokens:    tokens,
		store:     store,
		navigator: o.navigator,
		refresher: c.refreshTokens,
		metrics:   o.metrics,
	}
	if o.dedupe {
		interceptor.group = &singleflight.Group{}
	}
	c.http = &http.Client{
		Timeout: o.timeout,
		Transport: ChainTransport(o.base,
			RequestIDTransport,
			func(next http.RoundTripper) http.RoundTripper {
				interceptor.next = next
				return interceptor
			},
			o.metrics.instrument,
		),
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Metrics() *Metrics {
	return c.metrics
}

type requestOptions struct {
	header http.Header
	query  url.Values
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

// WithAuthorization sends accessToken instead of the stored one.
func WithAuthorization(accessToken string) RequestOption {
	return func(o *requestOptions) {
		t := token.Bearer(accessToken)
		o.header.Set("Authorization", t.Type()+" "+t.AccessToken)
	}
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) { o.header.Set(key, value) }
}

func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, body, out, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do sends body as JSON (when non-nil) and decodes a 2xx response into out
// (when non-nil). Non-2xx responses come back as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error {
	var payload []byte
	contentType := ""
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("[apiclient Do] encoding %s %s: %w", method, path, err)
		}
		payload = b
		contentType = contentTypeJSON
	}
	return c.send(ctx, c.http, method, path, payload, contentType, out, opts...)
}

// FormFile is one file part of a multipart upload.
type FormFile struct {
	Field    string
	Name     string
	Contents io.Reader
}

// PostMultipart uploads fields and file as multipart/form-data. The form is
// buffered so the request can be replayed after a token refresh.
func (c *Client) PostMultipart(ctx context.Context, path string, fields map[string]string, file FormFile, out any, opts ...RequestOption) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(file.Field, file.Name)
	if err != nil {
		return fmt.Errorf("[apiclient PostMultipart] creating part: %w", err)
	}
	if _, err := io.Copy(part, file.Contents); err != nil {
		return fmt.Errorf("[apiclient PostMultipart] reading %s: %w", file.Name, err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("[apiclient PostMultipart] field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("[apiclient PostMultipart] closing form: %w", err)
	}
	return c.send(ctx, c.http, http.MethodPost, path, buf.Bytes(), w.FormDataContentType(), out, opts...)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, payload []byte, contentType string, out any, opts ...RequestOption) error {
	ro := requestOptions{header: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(&ro)
	}

	target := c.baseURL + path
	if len(ro.query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target += sep + ro.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("[apiclient send] building %s %s: %w", method, path, err)
	}
	for k, vs := range ro.header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("[apiclient send] rate limit: %w", err)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("[apiclient send] %s %s: %w", method, path, ctx.Err())
		}
		if errors.Is(err, apperrors.ErrNetworkUnavailable) || errors.Is(err, apperrors.ErrStorageUnavailable) {
			return fmt.Errorf("[apiclient send] %s %s: %w", method, path, err)
		}
		return fmt.Errorf("[apiclient send] %s %s: %w: %w", method, path, apperrors.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("[apiclient decodeResponse] reading body: %w: %w", apperrors.ErrNetworkUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(data) > 0 {
			if err := json.Unmarshal(data, apiErr); err != nil {
				log.Debug().Int("status", resp.StatusCode).Msg("APIClient: error body is not JSON")
			}
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("[apiclient decodeResponse] %w: %w", apperrors.ErrInvalidResponse, err)
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshTokens is the interceptor's renewal call. It bypasses the
// interceptor so a rejected refresh can't trigger another refresh.
func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (token.Pair, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return token.Pair{}, fmt.Errorf("[apiclient refreshTokens] encoding: %w", err)
	}
	var pair token.Pair
	if err := c.send(ctx, c.refreshHTTP, http.MethodPost, PathRefresh, payload, contentTypeJSON, &pair); err != nil {
		return token.Pair{}, err
	}
	return pair, nil
}
