package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/httpx"
	"github.com/tansive/tenancy/internal/common/uuid"
)

type requestIdContextKey string

const (
	requestIdKey    = requestIdContextKey("requestId")
	RequestIDHeader = "X-Tenancy-Request-ID"
)

// RequestLogger tags each request with a request id, in the context logger and in the
// response header, and logs the request and its completion.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := httpx.NewResponseWriter(w)

		requestID := newRequestId()
		ctx := context.WithValue(r.Context(), requestIdKey, requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)
		rw.Header().Set(RequestIDHeader, requestID)

		log.Ctx(ctx).Info().
			Str("host", r.Host).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_ip", r.RemoteAddr).
			Msg("incoming request")

		defer func() {
			log.Ctx(ctx).Info().
				Int("status", rw.Status()).
				Str("duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds())).
				Msg("request completed")
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}

// RequestIdFromContext returns the request id set by RequestLogger, or "".
func RequestIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey).(string)
	return id
}

func newRequestId() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
}
