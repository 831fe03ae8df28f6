// Package tenancytest builds throwaway SQLite tenancy environments for tests.
package tenancytest

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/db"
	"github.com/tansive/tenancy/internal/tenancy/db/dbmanager"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/db/schema"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

// Env is a system database with the tenancy schema, in its own temporary directory.
type Env struct {
	Config   *config.ConfigParam
	Driver   dbmanager.Driver
	Registry *dbmanager.Registry
	Store    db.EntityStore
}

// Context returns a background context carrying the global logger.
func Context() context.Context {
	return log.Logger.WithContext(context.Background())
}

// Config returns a valid SQLite configuration rooted at dir.
func Config(dir string) *config.ConfigParam {
	cfg := config.Default()
	cfg.DB.Driver = config.DriverSQLite
	cfg.DB.DBName = "system"
	cfg.DB.DataDir = filepath.Join(dir, "data")
	cfg.Webserver.SitesDir = filepath.Join(dir, "sites")
	cfg.Webserver.RootDir = filepath.Join(dir, "www")
	return cfg
}

// New builds an Env and closes it when the test ends.
func New(t testing.TB) *Env {
	t.Helper()
	ctx := Context()
	cfg := Config(t.TempDir())

	driver, err := dbmanager.NewDriver(cfg.DB)
	require.NoError(t, err)
	r, err := dbmanager.NewRegistry(ctx, driver, dbmanager.NewCredentials(""), dbmanager.PoolOptions{MaxOpenConns: 8, PingAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	fsys, err := schema.FS(driver.Name())
	require.NoError(t, err)
	files, err := fs.Glob(fsys, "*.sql")
	require.NoError(t, err)
	for _, f := range files {
		ddl, err := fs.ReadFile(fsys, f)
		require.NoError(t, err)
		_, err = r.System().ExecContext(ctx, string(ddl))
		require.NoError(t, err, f)
	}

	return &Env{
		Config:   cfg,
		Driver:   driver,
		Registry: r,
		Store:    db.NewEntityStore(r.System(), driver),
	}
}

// Seed provisions a tenant by hand: tenant row, physical database, website and hostname.
func (e *Env) Seed(t testing.TB, name, hostname string) *models.Database {
	t.Helper()
	ctx := Context()

	tenant := &models.Tenant{Name: name, Email: fmt.Sprintf("info@%s", hostname)}
	require.NoError(t, e.Store.CreateTenant(ctx, tenant))

	d := &models.Database{Name: naming.DatabaseName(tenant.ID, name), Driver: e.Driver.Name()}
	require.NoError(t, e.Driver.CreateDatabase(ctx, e.Registry.System(), dbmanager.Target{Database: d.Name}))
	require.NoError(t, e.Store.CreateDatabase(ctx, d))

	w := &models.Website{TenantID: tenant.ID, DatabaseID: d.ID}
	require.NoError(t, e.Store.CreateWebsite(ctx, w))
	require.NoError(t, e.Store.CreateHostname(ctx, &models.Hostname{Hostname: hostname, TenantID: tenant.ID, WebsiteID: w.ID}))
	return d
}
