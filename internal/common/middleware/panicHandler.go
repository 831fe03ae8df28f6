// Package middleware provides the HTTP middleware placed in front of tenant handlers:
// request logging with request ids, a per-request deadline and panic recovery.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/httpx"
)

// PanicHandler recovers from panics in next, logs them with the stack trace and answers
// with a 500 when nothing was written yet.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				log.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("stack_trace", string(debug.Stack())).
					Msg("panic occurred")

				if !rw.Written() {
					httpx.ErrApplicationError().Send(rw)
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
