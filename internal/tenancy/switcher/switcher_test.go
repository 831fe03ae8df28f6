package switcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tansive/tenancy/internal/common/middleware"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/resolver"
	"github.com/tansive/tenancy/internal/tenancy/switcher"
	"github.com/tansive/tenancy/internal/tenancy/tenancytest"
)

func TestSwitcherCurrent(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	d := env.Seed(t, "example", "example.org")

	s := switcher.New(env.Registry)
	defer s.Close(ctx)
	assert.Nil(t, s.Current())
	assert.Equal(t, "system", s.CurrentName())

	s.SetCurrent(d)
	assert.Equal(t, d.Name, s.CurrentName())
	assert.Equal(t, 0, env.Registry.Len(), "switching does not connect")

	c1, err := s.Conn(ctx)
	require.NoError(t, err)
	c2, err := s.Conn(ctx)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, env.Registry.Len())

	s.Reset()
	assert.Nil(t, s.Current())
	sys, err := s.Conn(ctx)
	require.NoError(t, err)
	assert.NotSame(t, c1, sys)
	assert.Same(t, env.Registry.System(), s.System())
}

func TestSwitcherIsolation(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	first := env.Seed(t, "first", "first.example")
	second := env.Seed(t, "second", "second.example")

	s := switcher.New(env.Registry)
	defer s.Close(ctx)
	s.SetCurrent(first)
	conn, err := s.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT)`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO notes (body) VALUES ('first only')`)
	require.NoError(t, err)

	other := switcher.New(env.Registry)
	defer other.Close(ctx)
	other.SetCurrent(second)
	otherConn, err := other.Conn(ctx)
	require.NoError(t, err)
	var n int
	err = otherConn.GetContext(ctx, &n, `SELECT COUNT(*) FROM notes`)
	assert.Error(t, err, "the table exists only in the first tenant database")

	err = env.Registry.System().GetContext(ctx, &n, `SELECT COUNT(*) FROM notes`)
	assert.Error(t, err, "nor in the system database")

	assert.Equal(t, second.Name, other.CurrentName())
	assert.Equal(t, first.Name, s.CurrentName(), "switchers do not affect each other")
}

func TestSwitcherClose(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	d := env.Seed(t, "example", "example.org")

	s := switcher.New(env.Registry)
	s.SetCurrent(d)
	_, err := s.Conn(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))
	_, err = s.Conn(ctx)
	assert.ErrorIs(t, err, switcher.ErrSwitcherClosed)
	_, err = s.DB(ctx)
	assert.ErrorIs(t, err, switcher.ErrSwitcherClosed)
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, switcher.FromContext(ctx))
	s := switcher.New(nil)
	assert.Same(t, s, switcher.FromContext(switcher.WithSwitcher(ctx, s)))
}

type downPools struct {
	switcher.Pools
}

func (downPools) DB(ctx context.Context, d *models.Database) (*sqlx.DB, error) {
	return nil, dberror.ErrConnectivity.Msg("database " + d.Name + " unreachable")
}

func serve(h http.Handler, host string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(tenancytest.Context())
	req.Host = host
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	env := tenancytest.New(t)
	d := env.Seed(t, "example", "example.org")
	res := resolver.New(env.Store, env.Registry)
	h := middleware.RequestLogger(switcher.Middleware(res, env.Registry)(switcher.CurrentHandler()))

	rec := serve(h, "Example.org:8080")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"`+d.Name+`"`)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = serve(h, "unknown.example")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown host")

	down := switcher.Middleware(res, downPools{env.Registry})(switcher.CurrentHandler())
	rec = serve(down, "example.org")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddlewareClosesOnPanic(t *testing.T) {
	env := tenancytest.New(t)
	env.Seed(t, "example", "example.org")
	res := resolver.New(env.Store, env.Registry)

	var captured *switcher.Switcher
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = switcher.FromContext(r.Context())
		_, err := captured.Conn(r.Context())
		require.NoError(t, err)
		panic("handler failed")
	})
	h := middleware.PanicHandler(switcher.Middleware(res, env.Registry)(panicky))

	rec := serve(h, "example.org")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, captured)
	_, err := captured.Conn(tenancytest.Context())
	assert.ErrorIs(t, err, switcher.ErrSwitcherClosed)
	assert.True(t, strings.Contains(rec.Body.String(), "unable to process request"))
}
