package migrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tansive/tenancy/internal/common/apperrors"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/migrator"
	"github.com/tansive/tenancy/internal/tenancy/switcher"
	"github.com/tansive/tenancy/internal/tenancy/tenancytest"
)

var tenantFixtures = []string{
	"2017_02_24_000000_create_tenant_migration_test_table",
	"2017_02_24_000001_add_tenant_migration_test_index",
}

type recorder struct {
	mu      sync.Mutex
	applied map[string][]string
	failed  map[string][]string
}

func newRecorder() *recorder {
	return &recorder{applied: map[string][]string{}, failed: map[string][]string{}}
}

func (r *recorder) MigrationApplied(database, migration string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[database] = append(r.applied[database], migration)
}

func (r *recorder) MigrationFailed(database, migration string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[database] = append(r.failed[database], migration)
}

func source(t *testing.T, dir string) migrator.Source {
	t.Helper()
	src, err := migrator.DirSource(dir)
	require.NoError(t, err)
	return src
}

func history(t *testing.T, env *tenancytest.Env, d *models.Database) []models.MigrationRecord {
	t.Helper()
	ctx := tenancytest.Context()
	s := switcher.New(env.Registry)
	defer s.Close(ctx)
	s.SetCurrent(d)
	conn, err := s.Conn(ctx)
	require.NoError(t, err)
	var records []models.MigrationRecord
	require.NoError(t, conn.SelectContext(ctx, &records, `SELECT id, migration, batch, applied_at FROM migrations ORDER BY id`))
	return records
}

func ids(records []models.MigrationRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Migration)
	}
	return out
}

func TestRunAllTenants(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	first := env.Seed(t, "first", "first.example")
	second := env.Seed(t, "second", "second.example")
	obs := newRecorder()
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{Concurrency: 2, Observer: obs})

	report, err := r.Run(ctx, migrator.ParseSelector("true"), source(t, "testdata/tenant"))
	require.NoError(t, err)
	assert.Equal(t, apperrors.ExitOK, report.ExitCode())
	require.Len(t, report.Targets, 2)
	for _, target := range report.Targets {
		assert.Equal(t, tenantFixtures, target.Ran)
		assert.Equal(t, tenantFixtures, target.Applied)
		assert.Empty(t, target.Pending)
		assert.Equal(t, 1, target.Batch)
	}

	for _, d := range []*models.Database{first, second} {
		records := history(t, env, d)
		assert.Equal(t, tenantFixtures, ids(records))
		assert.Equal(t, 1, records[0].Batch)
		assert.Equal(t, tenantFixtures, obs.applied[d.Name])
	}

	// the system database has no tenant tables and no history of its own yet
	var n int
	err = env.Registry.System().GetContext(ctx, &n, `SELECT COUNT(*) FROM tenant_migration_test`)
	assert.Error(t, err)
}

func TestRunIsIdempotent(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	d := env.Seed(t, "example", "example.org")
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{})
	src := source(t, "testdata/tenant")

	_, err := r.Run(ctx, migrator.Tenant("example"), src)
	require.NoError(t, err)
	report, err := r.Run(ctx, migrator.Tenant("example"), src)
	require.NoError(t, err)
	require.Len(t, report.Targets, 1)
	assert.Empty(t, report.Targets[0].Ran)
	assert.Equal(t, tenantFixtures, report.Targets[0].Applied)
	assert.Len(t, history(t, env, d), len(tenantFixtures))
}

func TestRunSystem(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{})

	report, err := r.Run(ctx, migrator.System(), source(t, "testdata/tenant"))
	require.NoError(t, err)
	require.Len(t, report.Targets, 1)
	assert.Equal(t, "system", report.Targets[0].Database)
	assert.Equal(t, tenantFixtures, ids(history(t, env, nil)))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	d := env.Seed(t, "example", "example.org")
	obs := newRecorder()
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{Observer: obs})

	report, err := r.Run(ctx, migrator.Databases(d), source(t, "testdata/broken"))
	require.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrMigration)
	assert.Contains(t, err.Error(), "0002_insert_into_missing_table")
	assert.Contains(t, err.Error(), d.Name)
	assert.Equal(t, apperrors.ExitMigration, report.ExitCode())

	target := report.Targets[0]
	assert.Equal(t, []string{"0001_create_things"}, target.Ran)
	assert.Equal(t, []string{"0002_insert_into_missing_table", "0003_create_more_things"}, target.Pending)
	assert.Equal(t, []string{"0001_create_things"}, ids(history(t, env, d)), "applied migrations are recorded immediately")
	assert.Equal(t, []string{"0002_insert_into_missing_table"}, obs.failed[d.Name])
}

func TestBulkFailureIsIsolated(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	good := env.Seed(t, "good", "good.example")
	bad := env.Seed(t, "bad", "bad.example")

	// the first fixture cannot be applied where its table already exists
	s := switcher.New(env.Registry)
	s.SetCurrent(bad)
	conn, err := s.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `CREATE TABLE tenant_migration_test (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{Concurrency: 4})
	report, err := r.Run(ctx, migrator.AllTenants(), source(t, "testdata/tenant"))
	require.Error(t, err)
	assert.NotEqual(t, 0, report.ExitCode())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, bad.Name, failed[0].Database)
	assert.Empty(t, history(t, env, bad))
	assert.Equal(t, tenantFixtures, ids(history(t, env, good)))
}

func TestStatus(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	d := env.Seed(t, "example", "example.org")
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{})

	report, err := r.Status(ctx, migrator.Tenant("example"), source(t, "testdata/tenant"))
	require.NoError(t, err)
	assert.Empty(t, report.Targets[0].Applied)
	assert.Equal(t, tenantFixtures, report.Targets[0].Pending)
	assert.Empty(t, history(t, env, d), "status applies nothing")

	_, err = r.Run(ctx, migrator.Tenant("example"), source(t, "testdata/tenant"))
	require.NoError(t, err)
	report, err = r.Status(ctx, migrator.Tenant("example"), source(t, "testdata/tenant"))
	require.NoError(t, err)
	assert.Equal(t, tenantFixtures, report.Targets[0].Applied)
	assert.Empty(t, report.Targets[0].Pending)
}

func TestRunUnknownTenant(t *testing.T) {
	env := tenancytest.New(t)
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{})
	_, err := r.Run(tenancytest.Context(), migrator.Tenant("missing"), source(t, "testdata/tenant"))
	assert.ErrorIs(t, err, dberror.ErrNotFound)
}

func TestRunNoTenants(t *testing.T) {
	env := tenancytest.New(t)
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{})
	report, err := r.Run(tenancytest.Context(), migrator.AllTenants(), source(t, "testdata/tenant"))
	require.NoError(t, err)
	assert.Empty(t, report.Targets)
	assert.Equal(t, 0, report.ExitCode())
}

func TestConcurrentRunsOnOneDatabase(t *testing.T) {
	env := tenancytest.New(t)
	ctx := tenancytest.Context()
	d := env.Seed(t, "example", "example.org")
	r := migrator.New(env.Registry, env.Driver, env.Store, migrator.Options{})
	src := source(t, "testdata/tenant")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.Run(context.WithoutCancel(ctx), migrator.Databases(d), src)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, tenantFixtures, ids(history(t, env, d)), "each migration is applied once")
}
