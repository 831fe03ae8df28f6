package dbmanager

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
)

func newSQLiteRegistry(t *testing.T) *Registry {
	t.Helper()
	ctx := log.Logger.WithContext(context.Background())
	driver := NewSQLiteDriver(config.DBConfig{Driver: config.DriverSQLite, DBName: "system", DataDir: t.TempDir()})
	r, err := NewRegistry(ctx, driver, NewCredentials(""), PoolOptions{MaxOpenConns: 4, PingAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteDriverLifecycle(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	r := newSQLiteRegistry(t)
	d := r.Driver()

	names, err := d.ListDatabases(ctx, r.System())
	require.NoError(t, err)
	assert.Equal(t, []string{"system"}, names)

	require.NoError(t, d.CreateDatabase(ctx, r.System(), Target{Database: "1_example"}))
	assert.Error(t, d.CreateDatabase(ctx, r.System(), Target{Database: "1_example"}), "database exists")
	assert.Error(t, d.CreateDatabase(ctx, r.System(), Target{Database: "../escape"}))

	names, err = d.ListDatabases(ctx, r.System())
	require.NoError(t, err)
	assert.Equal(t, []string{"1_example", "system"}, names)

	require.NoError(t, d.DropDatabase(ctx, r.System(), Target{Database: "1_example"}))
	require.NoError(t, d.DropDatabase(ctx, r.System(), Target{Database: "1_example"}), "dropping twice is fine")
	names, err = d.ListDatabases(ctx, r.System())
	require.NoError(t, err)
	assert.Equal(t, []string{"system"}, names)
}

func TestRegistryPools(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	r := newSQLiteRegistry(t)
	require.NoError(t, r.Driver().CreateDatabase(ctx, r.System(), Target{Database: "1_example"}))

	desc := &models.Database{Name: "1_example", Driver: config.DriverSQLite}
	db1, err := r.DB(ctx, desc)
	require.NoError(t, err)
	db2, err := r.DB(ctx, desc)
	require.NoError(t, err)
	assert.Same(t, db1, db2, "pools are keyed by database name")
	assert.Equal(t, 1, r.Len())

	sys, err := r.DB(ctx, &models.Database{Name: "system"})
	require.NoError(t, err)
	assert.Same(t, r.System(), sys)

	require.NoError(t, r.Evict("1_example"))
	require.NoError(t, r.Evict("1_example"))
	assert.Equal(t, 0, r.Len())
	opens, closes := r.Stats()
	assert.Equal(t, uint64(2), opens)
	assert.Equal(t, uint64(1), closes)

	_, err = r.DB(ctx, nil)
	assert.ErrorIs(t, err, dberror.ErrInvalidInput)
}

func TestRegistryMissingTenantFile(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	r := newSQLiteRegistry(t)

	_, err := r.DB(ctx, &models.Database{Name: "7_gone", Driver: config.DriverSQLite})
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrConnectivity)
	assert.Equal(t, 0, r.Len())

	assert.NoFileExists(t, r.Driver().(*sqliteDriver).path("7_gone"), "a missing tenant database is not recreated")
	names, err := r.Driver().ListDatabases(ctx, r.System())
	require.NoError(t, err)
	assert.Equal(t, []string{"system"}, names)
}

func TestSQLiteUniqueViolation(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	r := newSQLiteRegistry(t)
	_, err := r.System().ExecContext(ctx, `CREATE TABLE t (name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	_, err = r.System().ExecContext(ctx, `INSERT INTO t (name) VALUES ('a')`)
	require.NoError(t, err)
	_, err = r.System().ExecContext(ctx, `INSERT INTO t (name) VALUES ('a')`)
	require.Error(t, err)
	assert.True(t, r.Driver().IsUniqueViolation(err))
	assert.False(t, r.Driver().IsUniqueViolation(assert.AnError))
}

func TestPostgresUnreachable(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	driver := NewPostgresDriver(config.DBConfig{
		Driver: config.DriverPostgres, Host: "127.0.0.1", Port: 1, DBName: "tenancy", User: "tenancy", SSLMode: "disable",
	})
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := NewRegistry(ctx, driver, nil, PoolOptions{PingAttempts: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrConnectivity)
	assert.NotErrorIs(t, err, dberror.ErrNotFound)
}

func TestCredentials(t *testing.T) {
	c := NewCredentials("app-key")
	require.True(t, c.Enabled())
	p1, err := c.Password("1_example")
	require.NoError(t, err)
	p2, err := c.Password("1_example")
	require.NoError(t, err)
	p3, err := c.Password("2_other")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.NotEqual(t, p1, p3)
	assert.Len(t, p1, 32)

	other, err := NewCredentials("other-key").Password("1_example")
	require.NoError(t, err)
	assert.NotEqual(t, p1, other)

	tgt, err := c.Target("1_example", "1_example")
	require.NoError(t, err)
	assert.Equal(t, p1, tgt.Password)

	tgt, err = NewCredentials("").Target("1_example", "1_example")
	require.NoError(t, err)
	assert.Empty(t, tgt.Username)
	assert.Empty(t, tgt.Password)

	var nilCreds *Credentials
	assert.False(t, nilCreds.Enabled())
}

func TestNewDriver(t *testing.T) {
	d, err := NewDriver(config.DBConfig{Driver: config.DriverPostgres})
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, d.Name())
	d, err = NewDriver(config.DBConfig{Driver: config.DriverSQLite})
	require.NoError(t, err)
	assert.Equal(t, config.DriverSQLite, d.Name())
	_, err = NewDriver(config.DBConfig{Driver: "mysql"})
	assert.Error(t, err)
}
