package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/httpx"
)

// SetTimeout bounds the request context to timeout. Handlers are expected to
// honour the context; if the deadline passes before anything was written the
// client gets a 408.
func SetTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			rw := httpx.NewResponseWriter(w)
			rw.Header().Set("X-Request-Timeout", timeout.String())

			next.ServeHTTP(rw, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Ctx(ctx).Error().Msg("request timed out")
				if !rw.Written() {
					httpx.ErrRequestTimeout().Send(rw)
				}
			}
		})
	}
}
