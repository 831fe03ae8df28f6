package switcher

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/httpx"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
)

// HostResolver resolves a request host to its database. resolver.Resolver implements it.
type HostResolver interface {
	Resolve(ctx context.Context, hostname string) (*models.Database, error)
}

// Middleware gives every request its own Switcher pointed at the database of r.Host.
// Unknown hosts get a 404 and unreachable databases a 503. The switcher is closed after
// the handler returns, also when it panics.
func Middleware(res HostResolver, pools Pools) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			d, err := res.Resolve(ctx, r.Host)
			if err != nil {
				if errors.Is(err, dberror.ErrNotFound) || errors.Is(err, dberror.ErrInvalidInput) {
					httpx.ErrUnknownHost(r.Host).Send(w)
					return
				}
				httpx.SendError(w, err)
				return
			}
			// opens the pool on first use so an unreachable tenant fails fast
			if _, err := pools.DB(ctx, d); err != nil {
				httpx.SendError(w, err)
				return
			}

			s := New(pools)
			s.SetCurrent(d)
			defer func() {
				if err := s.Close(context.WithoutCancel(ctx)); err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("unable to close switcher")
				}
			}()

			ctx = log.Ctx(ctx).With().Str("database", d.Name).Logger().WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(WithSwitcher(ctx, s)))
		})
	}
}

type currentInfo struct {
	Host     string `json:"host"`
	Database string `json:"database"`
	Driver   string `json:"driver,omitempty"`
}

// CurrentHandler reports the database the request was switched to.
func CurrentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := FromContext(r.Context())
		if s == nil {
			httpx.ErrApplicationError("no tenant in request context").Send(w)
			return
		}
		info := currentInfo{Host: r.Host, Database: s.CurrentName()}
		if d := s.Current(); d != nil {
			info.Driver = d.Driver
		}
		httpx.SendJsonRsp(r.Context(), w, http.StatusOK, info)
	})
}
