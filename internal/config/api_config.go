package config

import (
	"strings"
	"time"
)

type APIConfig interface {
	GetAPIBaseURL() string
	GetAPITimeout() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
	GetRefreshDedupe() bool
}

type API struct{}

var _ APIConfig = API{}

// GetAPIBaseURL returns the LibraHub REST root without a trailing slash.
func (API) GetAPIBaseURL() string {
	url := strings.TrimSpace(GetEnv("LIBRAHUB_API_URL", "http://localhost:8080/api"))
	return strings.TrimRight(url, "/")
}

func (API) GetAPITimeout() time.Duration {
	return GetDurationEnv("API_TIMEOUT", 30*time.Second)
}

// GetRateLimit is requests per second; 0 disables client-side limiting.
func (API) GetRateLimit() float64 {
	return GetFloatEnv("API_RATE_LIMIT", 0)
}

func (API) GetRateBurst() int {
	return GetIntEnv("API_RATE_BURST", 1)
}

// GetRefreshDedupe enables coalescing of concurrent 401-triggered refreshes.
// Off by default: each failing request refreshes on its own.
func (API) GetRefreshDedupe() bool {
	return GetBoolEnv("REFRESH_DEDUPE", false)
}
