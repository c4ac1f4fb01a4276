package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type routePatternKey struct{}

// WithRoutePattern pins the route label used by metrics and logs.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns a pinned route label if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

// routeOf resolves the route label for r. chi fills the pattern while routing,
// so this must run after the downstream handler returned.
func routeOf(r *http.Request) string {
	if pinned := RoutePatternFromContext(r.Context()); pinned != "" {
		return pinned
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
