package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/courtcheck/courtcheck/internal/common/httpx"
)

// PanicHandler recovers from handler panics, logs the stack and answers 500
// with {"error": "<panic message>"} if nothing has been written yet.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("stack_trace", string(debug.Stack())).
					Msg("panic occurred")

				if !rw.Written() {
					httpx.ErrApplicationError(fmt.Sprintf("%v", err)).Send(rw)
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
