// Package migrator applies SQL migrations to the system database, to one tenant or to
// every tenant. Each database keeps its own history in a migrations table; a migration
// and its history row are committed in one transaction.
package migrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/dbmanager"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/switcher"
)

// Table is the name of the migration history table in every database.
const Table = "migrations"

// Catalog lists tenant databases. The entity store implements it.
type Catalog interface {
	ListDatabases(ctx context.Context) ([]*models.Database, error)
	ListTenantDatabases(ctx context.Context, tenantName string) ([]*models.Database, error)
}

// Observer is told about every migration applied or failed.
type Observer interface {
	MigrationApplied(database, migration string, elapsed time.Duration)
	MigrationFailed(database, migration string)
}

// Options configures a Runner.
type Options struct {
	// Concurrency bounds the databases migrated at once. Values below 1 mean 1.
	Concurrency int
	Observer    Observer
}

// Runner applies migrations. It is safe for concurrent use; runs touching the same
// database are serialised.
type Runner struct {
	pools   switcher.Pools
	driver  dbmanager.Driver
	catalog Catalog
	opts    Options
	sb      sq.StatementBuilderType
	locksMu sync.Mutex
	dbLocks map[string]*sync.Mutex
}

// New returns a Runner.
func New(pools switcher.Pools, driver dbmanager.Driver, catalog Catalog, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{
		pools:   pools,
		driver:  driver,
		catalog: catalog,
		opts:    opts,
		sb:      sq.StatementBuilder.PlaceholderFormat(driver.Placeholder()),
		dbLocks: make(map[string]*sync.Mutex),
	}
}

// Run applies the pending migrations of src to every database selected by sel. A failing
// database stops at its first failed migration; other databases are not affected. The
// returned error aggregates every failure and is nil when the report's ExitCode is 0.
func (r *Runner) Run(ctx context.Context, sel Selector, src Source) (*Report, error) {
	return r.each(ctx, sel, src, true)
}

// Status reports the applied and pending migrations of every selected database without
// applying anything.
func (r *Runner) Status(ctx context.Context, sel Selector, src Source) (*Report, error) {
	return r.each(ctx, sel, src, false)
}

func (r *Runner) each(ctx context.Context, sel Selector, src Source, apply bool) (*Report, error) {
	migrations, err := src.List(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to list migrations")
		return nil, err
	}
	targets, err := r.targets(ctx, sel)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Selector: sel.String(),
		Targets:  make([]*TargetReport, len(targets)),
	}
	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, d := range targets {
		i, d := i, d
		g.Go(func() error {
			// failures are recorded per target so one database never cancels another
			report.Targets[i] = r.migrate(ctx, d, migrations, src, apply)
			return nil
		})
	}
	g.Wait()
	return report, report.Err()
}

// targets resolves sel. A nil entry is the system database.
func (r *Runner) targets(ctx context.Context, sel Selector) ([]*models.Database, error) {
	switch sel.kind {
	case selectSystem:
		return []*models.Database{nil}, nil
	case selectAllTenants:
		return r.catalog.ListDatabases(ctx)
	case selectTenant:
		return r.catalog.ListTenantDatabases(ctx, sel.tenant)
	}
	return sel.databases, nil
}

func (r *Runner) lock(name string) func() {
	r.locksMu.Lock()
	l, ok := r.dbLocks[name]
	if !ok {
		l = &sync.Mutex{}
		r.dbLocks[name] = l
	}
	r.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

func (r *Runner) migrate(ctx context.Context, d *models.Database, migrations []Migration, src Source, apply bool) *TargetReport {
	s := switcher.New(r.pools)
	s.SetCurrent(d)
	name := s.CurrentName()
	defer s.Close(context.WithoutCancel(ctx))
	defer r.lock(name)()

	ctx = log.Ctx(ctx).With().Str("database", name).Logger().WithContext(ctx)
	rep := &TargetReport{Database: name, Applied: []string{}, Pending: []string{}}
	fail := func(err error) *TargetReport {
		rep.err = err
		rep.Error = err.Error()
		return rep
	}

	conn, err := s.Conn(ctx)
	if err != nil {
		return fail(err)
	}
	if _, err := conn.ExecContext(ctx, r.driver.MigrationTableDDL(Table)); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to create migrations table")
		return fail(dberror.ErrMigration.MsgErr(fmt.Sprintf("unable to create migrations table on %s", name), err))
	}

	history, err := r.history(ctx, conn)
	if err != nil {
		return fail(dberror.ErrMigration.MsgErr(fmt.Sprintf("unable to read migrations table on %s", name), err))
	}
	done := make(map[string]bool, len(history))
	for _, rec := range history {
		done[rec.Migration] = true
		rep.Applied = append(rep.Applied, rec.Migration)
		if rec.Batch >= rep.Batch {
			rep.Batch = rec.Batch + 1
		}
	}
	if rep.Batch == 0 {
		rep.Batch = 1
	}
	var pending []string
	for _, m := range migrations {
		if !done[m.ID] {
			pending = append(pending, m.ID)
		}
	}

	if !apply {
		rep.Pending = append(rep.Pending, pending...)
		rep.Batch = 0
		return rep
	}

	for i, id := range pending {
		start := time.Now()
		if err := r.apply(ctx, conn, src, id, rep.Batch); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("migration", id).Msg("migration failed")
			if r.opts.Observer != nil {
				r.opts.Observer.MigrationFailed(name, id)
			}
			rep.Pending = append(rep.Pending, pending[i:]...)
			return fail(dberror.ErrMigration.MsgErr(fmt.Sprintf("migration %s failed on %s", id, name), err))
		}
		log.Ctx(ctx).Info().Str("migration", id).Int("batch", rep.Batch).Msg("migrated")
		if r.opts.Observer != nil {
			r.opts.Observer.MigrationApplied(name, id, time.Since(start))
		}
		rep.Ran = append(rep.Ran, id)
		rep.Applied = append(rep.Applied, id)
	}
	if len(rep.Ran) == 0 {
		rep.Batch = 0
		log.Ctx(ctx).Info().Msg("nothing to migrate")
	}
	return rep
}

func (r *Runner) history(ctx context.Context, conn *sqlx.Conn) ([]models.MigrationRecord, error) {
	query, args, err := r.sb.Select("id", "migration", "batch", "applied_at").From(Table).OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	var records []models.MigrationRecord
	if err := conn.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, err
	}
	return records, nil
}

// apply runs one migration and records it in the same transaction.
func (r *Runner) apply(ctx context.Context, conn *sqlx.Conn, src Source, id string, batch int) error {
	body, err := src.Load(ctx, id)
	if err != nil {
		return err
	}
	insert, args, err := r.sb.Insert(Table).
		Columns("migration", "batch", "applied_at").
		Values(id, batch, time.Now().UTC().Truncate(time.Microsecond)).
		ToSql()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
