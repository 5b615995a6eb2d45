package apiclient

import (
	"net/http"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// ChainTransport wraps base with mw; the first middleware is outermost.
func ChainTransport(base http.RoundTripper, mw ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	chained := base
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// RequestIDTransport tags each request with a fresh X-Request-ID unless the
// caller set one. A replay after refresh reuses the tag of the original.
func RequestIDTransport(next http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(HeaderRequestID) != "" {
			return next.RoundTrip(r)
		}
		r = r.Clone(r.Context())
		r.Header.Set(HeaderRequestID, uuid.NewString())
		return next.RoundTrip(r)
	})
}
