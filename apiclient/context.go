package apiclient

import "context"

type contextKey string

const noRefreshKey contextKey = "no_refresh"

// WithoutRefresh marks requests made with ctx as exempt from the
// refresh-and-replay cycle: a 401 is returned to the caller untouched.
func WithoutRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRefreshKey, true)
}

func refreshDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRefreshKey).(bool)
	return v
}
