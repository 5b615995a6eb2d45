// Package apitest runs an in-process LibraHub API for tests. It implements
// the auth, profile, user administration, catalog and statistics endpoints
// over in-memory state, counts calls per route, and can be told to fail the
// next call to a route.
package apitest

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/librahub-admin/admin"
	"github.com/jrsteele09/librahub-admin/token"
	"github.com/rs/zerolog/log"
)

// BasePath is where the API is mounted, like the real deployment's /api.
const BasePath = "/api"

// Route keys, as registered on the mux.
const (
	RouteLogin                   = "POST /auth/login"
	RouteRegister                = "POST /auth/register"
	RouteRefresh                 = "POST /auth/refresh"
	RouteVerifyEmail             = "POST /auth/verify-email"
	RouteForgotPassword          = "POST /auth/forgot-password"
	RouteResetPassword           = "POST /auth/reset-password"
	RouteResendVerificationEmail = "POST /auth/resend-verification-email"
	RouteCompleteRegistration    = "POST /users/complete-registration"
	RouteMe                      = "GET /me"

	// RouteEcho and RouteEchoPost answer any authenticated user with the
	// Authorization header and body they received.
	RouteEcho     = "GET /echo"
	RouteEchoPost = "POST /echo"

	RouteUserStatistics        = "GET /admin/statistics/users"
	RouteBookStatistics        = "GET /admin/statistics/books"
	RouteOrderStatistics       = "GET /admin/statistics/orders"
	RouteEntitlementStatistics = "GET /admin/statistics/entitlements"

	RouteListUsers   = "GET /users"
	RouteCreateUser  = "POST /users"
	RouteUpdateUser  = "PUT /users/{id}"
	RouteAssignRole  = "POST /users/{id}/roles"
	RouteRemoveRole  = "DELETE /users/{id}/roles/{role}"
	RouteDisableUser = "POST /users/{id}/disable"
	RouteEnableUser  = "POST /users/{id}/enable"
	RouteAvatar      = "POST /users/{id}/avatar"

	RouteListBooks     = "GET /books"
	RouteCreateBook    = "POST /books"
	RouteGetBook       = "GET /books/{id}"
	RouteUpdateBook    = "PUT /books/{id}"
	RouteRemoveBook    = "POST /books/{id}/remove"
	RouteSetPricing    = "POST /books/{id}/pricing"
	RoutePublishBook   = "POST /books/{id}/publish"
	RouteUnlistBook    = "POST /books/{id}/unlist"
	RouteUploadCover   = "POST /books/{id}/cover"
	RouteUploadEdition = "POST /books/{id}/editions"
)

// Request is what a route last received.
type Request struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Authorization returns the request's Authorization header.
func (r Request) Authorization() string {
	return r.Header.Get("Authorization")
}

type failure struct {
	status  int
	code    string
	message string
}

type Server struct {
	srv *httptest.Server
	mux *http.ServeMux

	accounts *accounts
	issuer   *issuer

	mu       sync.Mutex
	calls    map[string]int
	last     map[string]Request
	failures map[string][]failure

	// Single-use tokens sent by email, keyed by token, valued by email.
	verifications map[string]string
	resets        map[string]string
	invites       map[string]string

	books        map[string]*admin.BookDetails
	orders       admin.OrderStatistics
	entitlements admin.EntitlementStatistics
}

// New starts a fake API that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		mux:           http.NewServeMux(),
		accounts:      newAccounts(),
		issuer:        newIssuer(),
		calls:         make(map[string]int),
		last:          make(map[string]Request),
		failures:      make(map[string][]failure),
		verifications: make(map[string]string),
		resets:        make(map[string]string),
		invites:       make(map[string]string),
		books:         make(map[string]*admin.BookDetails),
		orders: admin.OrderStatistics{
			Total: 12, Paid: 9, Pending: 2, Cancelled: 1,
			Last30Days:   admin.PeriodStatistics{Count: 5, Revenue: 74.5},
			Last7Days:    admin.PeriodStatistics{Count: 2, Revenue: 19.98},
			TotalRevenue: 180.25,
			Currency:     "EUR",
		},
		entitlements: admin.EntitlementStatistics{Total: 9, Active: 8, Revoked: 1, GrantedLast30Days: 4},
	}
	s.initRoutes()

	s.srv = httptest.NewServer(http.StripPrefix(BasePath, s.mux))
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the API base URL, BasePath included.
func (s *Server) URL() string {
	return s.srv.URL + BasePath
}

// Close stops the server early, for tests of an unreachable API.
func (s *Server) Close() {
	s.srv.Close()
}

// Calls returns how many requests route has received.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls counts requests across all routes.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// LastRequest returns the most recent request to route.
func (s *Server) LastRequest(route string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[route]
	return r, ok
}

// FailNext makes the next call to route answer status with an error body.
// An empty message sends no body at all. Calls queue up.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, code: codeFor(status), message: message})
}

// QueueTokens fixes the pairs handed out by the next logins and refreshes,
// in order. Queued tokens are valid until revoked.
func (s *Server) QueueTokens(pairs ...token.Pair) {
	s.issuer.queue(pairs...)
}

// SetAccessTTL changes the lifetime of signed access tokens.
func (s *Server) SetAccessTTL(ttl time.Duration) {
	s.issuer.setTTL(ttl)
}

func (s *Server) SetOrderStatistics(stats admin.OrderStatistics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = stats
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// ChainMiddleware wraps routeFunction; the first middleware runs first.
func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

// APIMiddleware is the stack every route gets.
func (s *Server) APIMiddleware(route string, mw ...func(http.HandlerFunc) http.HandlerFunc) []func(http.HandlerFunc) http.HandlerFunc {
	chained := []func(http.HandlerFunc) http.HandlerFunc{
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.RecordMiddleware(route),
		s.FailureMiddleware(route),
	}
	return append(chained, mw...)
}

func (s *Server) LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("fake api")
		next(w, r)
	}
}

func (s *Server) RecoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("fake api handler panicked")
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next(w, r)
	}
}

func (s *Server) RecordMiddleware(route string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			s.mu.Lock()
			s.calls[route]++
			s.last[route] = Request{Header: r.Header.Clone(), Query: r.URL.Query(), Body: body}
			s.mu.Unlock()
			next(w, r)
		}
	}
}

func (s *Server) FailureMiddleware(route string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			queued := s.failures[route]
			var f *failure
			if len(queued) > 0 {
				f = &queued[0]
				s.failures[route] = queued[1:]
			}
			s.mu.Unlock()

			if f == nil {
				next(w, r)
				return
			}
			if f.message == "" {
				w.WriteHeader(f.status)
				return
			}
			writeJSON(w, f.status, apiError{Code: f.code, Message: f.message})
		}
	}
}

func (s *Server) initRoutes() {
	s.route(RouteLogin, s.LoginHandler())
	s.route(RouteRegister, s.RegisterHandler())
	s.route(RouteRefresh, s.RefreshHandler())
	s.route(RouteVerifyEmail, s.VerifyEmailHandler())
	s.route(RouteForgotPassword, s.ForgotPasswordHandler())
	s.route(RouteResetPassword, s.ResetPasswordHandler())
	s.route(RouteResendVerificationEmail, s.ResendVerificationHandler())
	s.route(RouteCompleteRegistration, s.CompleteRegistrationHandler())
	s.route(RouteMe, s.MeHandler(), s.RequireAuth())

	s.route(RouteEcho, s.EchoHandler(), s.RequireAuth())
	s.route(RouteEchoPost, s.EchoHandler(), s.RequireAuth())

	admins := s.RequireAuth(roleAdmin)
	s.route(RouteUserStatistics, s.UserStatisticsHandler(), admins)
	s.route(RouteBookStatistics, s.BookStatisticsHandler(), admins)
	s.route(RouteOrderStatistics, s.OrderStatisticsHandler(), admins)
	s.route(RouteEntitlementStatistics, s.EntitlementStatisticsHandler(), admins)

	s.route(RouteListUsers, s.ListUsersHandler(), admins)
	s.route(RouteCreateUser, s.CreateUserHandler(), admins)
	s.route(RouteUpdateUser, s.UpdateUserHandler(), admins)
	s.route(RouteAssignRole, s.AssignRoleHandler(), admins)
	s.route(RouteRemoveRole, s.RemoveRoleHandler(), admins)
	s.route(RouteDisableUser, s.DisableUserHandler(), admins)
	s.route(RouteEnableUser, s.EnableUserHandler(), admins)
	s.route(RouteAvatar, s.AvatarHandler(), admins)

	staff := s.RequireAuth(roleLibrarian, roleAdmin)
	s.route(RouteListBooks, s.ListBooksHandler(), staff)
	s.route(RouteCreateBook, s.CreateBookHandler(), staff)
	s.route(RouteGetBook, s.GetBookHandler(), staff)
	s.route(RouteUpdateBook, s.UpdateBookHandler(), staff)
	s.route(RouteRemoveBook, s.RemoveBookHandler(), staff)
	s.route(RouteSetPricing, s.SetPricingHandler(), staff)
	s.route(RoutePublishBook, s.PublishBookHandler(), staff)
	s.route(RouteUnlistBook, s.UnlistBookHandler(), staff)
	s.route(RouteUploadCover, s.UploadCoverHandler(), staff)
	s.route(RouteUploadEdition, s.UploadEditionHandler(), staff)
}

func (s *Server) route(pattern string, handler http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) {
	s.RegisterRouteFunc(pattern, ChainMiddleware(handler, s.APIMiddleware(pattern, mw...)...))
}
