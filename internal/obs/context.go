package obs

import "context"

type ctxKey int

const routePatternKey ctxKey = iota

// WithRoutePattern records the chi pattern that matched, e.g.
// /api/v1/pricing/widget/{productID}, for the logger and metrics.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey, pattern)
}

// RoutePatternFromContext returns "" before routing has happened.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	pattern, _ := ctx.Value(routePatternKey).(string)
	return pattern
}
