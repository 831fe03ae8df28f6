package resolver_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/resolver"
	"github.com/tansive/tenancy/internal/tenancy/tenancytest"
)

type countingLookup struct {
	resolver.Lookup
	calls int
}

func (c *countingLookup) FindDatabaseByHostname(ctx context.Context, hostname string) (*models.Database, error) {
	c.calls++
	return c.Lookup.FindDatabaseByHostname(ctx, hostname)
}

func TestResolve(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	want := env.Seed(t, "example", "example.org")

	lookup := &countingLookup{Lookup: env.Store}
	r := resolver.New(lookup, env.Registry)

	d1, err := r.Resolve(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, want.Name, d1.Name)
	assert.Equal(t, 0, env.Registry.Len(), "resolving does not connect")

	d2, err := r.Resolve(ctx, "Example.Org:443")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Equal(t, 1, lookup.calls)

	r.Invalidate("EXAMPLE.ORG")
	d3, err := r.Resolve(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, d1.ID, d3.ID)
	assert.Equal(t, 2, lookup.calls)
}

func TestResolveCacheExpires(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	env.Seed(t, "example", "example.org")

	lookup := &countingLookup{Lookup: env.Store}
	r := resolver.New(lookup, env.Registry, resolver.WithCacheTTL(50*time.Millisecond))

	_, err := r.Resolve(ctx, "example.org")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls)

	// removed behind the resolver's back, e.g. by another process
	h, err := env.Store.FindHostnameByHostname(ctx, "example.org")
	require.NoError(t, err)
	require.NoError(t, env.Store.DeleteHostname(ctx, h.ID))
	_, err = r.Resolve(ctx, "example.org")
	require.NoError(t, err, "still cached")

	time.Sleep(100 * time.Millisecond)
	_, err = r.Resolve(ctx, "example.org")
	assert.ErrorIs(t, err, dberror.ErrNotFound)
	assert.Equal(t, 2, lookup.calls)
}

func TestResolveUnknown(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	r := resolver.New(env.Store, env.Registry)

	_, err := r.Resolve(ctx, "nowhere.example")
	assert.ErrorIs(t, err, dberror.ErrNotFound)
	assert.NotErrorIs(t, err, dberror.ErrConnectivity)

	_, err = r.Resolve(ctx, "not a host")
	assert.ErrorIs(t, err, dberror.ErrInvalidInput)
}

func TestHandle(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	env.Seed(t, "example", "example.org")
	r := resolver.New(env.Store, env.Registry, resolver.WithoutCache())

	h1, err := r.Handle(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, 0, env.Registry.Len())
	require.NoError(t, h1.Ping(ctx))
	assert.Equal(t, 1, env.Registry.Len())

	h2, err := r.Handle(ctx, "example.org")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2, "no cache")
	db1, err := h1.DB(ctx)
	require.NoError(t, err)
	db2, err := h2.DB(ctx)
	require.NoError(t, err)
	assert.Same(t, db1, db2, "pools are shared by database name")
}

type downPools struct{}

func (downPools) DB(ctx context.Context, d *models.Database) (*sqlx.DB, error) {
	return nil, dberror.ErrConnectivity.Msg("database " + d.Name + " unreachable")
}

func TestHandleUnreachable(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	env.Seed(t, "example", "example.org")

	r := resolver.New(env.Store, downPools{})
	h, err := r.Handle(ctx, "example.org")
	require.NoError(t, err, "resolution does not depend on the tenant database")
	err = h.Ping(ctx)
	assert.ErrorIs(t, err, dberror.ErrConnectivity)
	assert.NotErrorIs(t, err, dberror.ErrNotFound)
}
