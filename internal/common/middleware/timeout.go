package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/httpx"
)

// SetTimeout bounds the request context by timeout. Handlers see the deadline through
// r.Context(); when it expires before anything was written the client gets a 503.
// A zero timeout disables the middleware.
func SetTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			rw := httpx.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !rw.Written() {
				log.Ctx(ctx).Error().Dur("timeout", timeout).Msg("request timed out")
				httpx.ErrRequestTimeout().Send(rw)
			}
		})
	}
}
