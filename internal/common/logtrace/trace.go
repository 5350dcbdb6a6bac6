package logtrace

import (
	"context"

	"github.com/rs/zerolog"
)

type requestIdContextKey struct{}

// WithRequestId returns a copy of ctx carrying id.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdContextKey{}, id)
}

// RequestIdFromContext returns the request id stored in ctx, or "".
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(requestIdContextKey{}).(string)
	if !ok {
		return ""
	}
	return r
}

// IsTraceEnabled reports whether route listings are printed at startup.
func IsTraceEnabled() bool {
	return zerolog.GlobalLevel() <= zerolog.TraceLevel
}
