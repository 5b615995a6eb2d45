package apiclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes.
const (
	RefreshSucceeded = "success"
	RefreshRejected  = "rejected"
	RefreshNoToken   = "no_token"
	RefreshNetwork   = "network"
	RefreshStorage   = "storage"
)

// Metrics are the client side counters. A nil *Metrics records nothing.
type Metrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	refreshes *prometheus.CounterVec
	teardowns prometheus.Counter
}

// NewMetrics builds and registers the client metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "librahub_client_requests_total",
				Help: "Requests sent to the LibraHub API, replays and refreshes included.",
			},
			[]string{"code", "method"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "librahub_client_request_duration_seconds",
				Help:    "LibraHub API round trip latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code", "method"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "librahub_client_token_refreshes_total",
				Help: "401-triggered token renewals by outcome.",
			},
			[]string{"outcome"},
		),
		teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "librahub_client_session_teardowns_total",
			Help: "Sessions ended because a token could not be renewed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.refreshes, m.teardowns)
	}
	return m
}

func (m *Metrics) instrument(next http.RoundTripper) http.RoundTripper {
	if m == nil {
		return next
	}
	return promhttp.InstrumentRoundTripperCounter(m.requests,
		promhttp.InstrumentRoundTripperDuration(m.latency, next))
}

func (m *Metrics) refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) teardown() {
	if m == nil {
		return
	}
	m.teardowns.Inc()
}

// RefreshCount returns the counter for outcome, for tests and diagnostics.
func (m *Metrics) RefreshCount(outcome string) prometheus.Counter {
	return m.refreshes.WithLabelValues(outcome)
}

func (m *Metrics) TeardownCount() prometheus.Counter {
	return m.teardowns
}
