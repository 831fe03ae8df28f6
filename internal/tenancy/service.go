// Package tenancy wires the tenancy components into a Service: the entity store, the
// resolver, the provisioner and the migration runner, all sharing one pool registry.
package tenancy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/middleware"
	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/db"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/dbmanager"
	"github.com/tansive/tenancy/internal/tenancy/db/schema"
	"github.com/tansive/tenancy/internal/tenancy/metrics"
	"github.com/tansive/tenancy/internal/tenancy/migrator"
	"github.com/tansive/tenancy/internal/tenancy/provisioner"
	"github.com/tansive/tenancy/internal/tenancy/resolver"
	"github.com/tansive/tenancy/internal/tenancy/switcher"
	"github.com/tansive/tenancy/internal/tenancy/webserver"
)

// Service is the composition root of the tenancy components.
type Service struct {
	Config      *config.ConfigParam
	Driver      dbmanager.Driver
	Registry    *dbmanager.Registry
	Store       db.EntityStore
	Resolver    *resolver.Resolver
	Provisioner *provisioner.Provisioner
	Migrator    *migrator.Runner
	Metrics     *metrics.Metrics
}

// Open connects to the system database, brings its schema up to date and builds every
// component. The caller must Close the Service.
func Open(ctx context.Context, cfg *config.ConfigParam) (*Service, error) {
	driver, err := dbmanager.NewDriver(cfg.DB)
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid database configuration", err)
	}
	lifetime, idle, err := cfg.Pool.Durations()
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid pool configuration", err)
	}
	creds := dbmanager.NewCredentials(cfg.Tenancy.AppKey)
	registry, err := dbmanager.NewRegistry(ctx, driver, creds, dbmanager.PoolOptions{
		MaxOpenConns:    cfg.Pool.MaxOpenConns,
		MaxIdleConns:    cfg.Pool.MaxIdleConns,
		ConnMaxLifetime: lifetime,
		ConnMaxIdleTime: idle,
		PingAttempts:    cfg.Pool.PingAttempts,
	})
	if err != nil {
		return nil, err
	}

	var web webserver.Configurator = webserver.Noop{}
	if cfg.Webserver.SitesDir != "" {
		caddy, err := webserver.NewCaddy(cfg.Webserver)
		if err != nil {
			registry.Close()
			return nil, dberror.ErrInvalidInput.MsgErr("invalid webserver configuration", err)
		}
		web = caddy
	}

	m := metrics.New(cfg.Metrics.Namespace)
	m.TrackPools(cfg.Metrics.Namespace, registry.Len)

	store := db.NewEntityStore(registry.System(), driver)
	res := resolver.New(store, registry)
	s := &Service{
		Config:   cfg,
		Driver:   driver,
		Registry: registry,
		Store:    store,
		Resolver: res,
		Provisioner: provisioner.New(provisioner.Config{
			Store:       store,
			Registry:    registry,
			Resolver:    res,
			Webserver:   web,
			TenantRoles: cfg.Tenancy.TenantRoles,
			Recorder:    m,
		}),
		Migrator: migrator.New(registry, driver, store, migrator.Options{
			Concurrency: cfg.Tenancy.MigrationConcurrency,
			Observer:    m,
		}),
		Metrics: m,
	}

	if _, err := s.MigrateSystem(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// MigrateSystem applies the embedded system schema to the system database.
func (s *Service) MigrateSystem(ctx context.Context) (*migrator.Report, error) {
	fsys, err := schema.FS(s.Driver.Name())
	if err != nil {
		return nil, dberror.ErrMigrationSource.MsgErr("no system schema", err)
	}
	return s.Migrator.Run(ctx, migrator.System(), migrator.NewFSSource(fsys))
}

// Source picks the migrations for sel: path when given, otherwise the system schema for
// the system database and the configured default path for tenants.
func (s *Service) Source(sel migrator.Selector, path string) (migrator.Source, error) {
	if path == "" && sel.IsSystem() {
		fsys, err := schema.FS(s.Driver.Name())
		if err != nil {
			return nil, dberror.ErrMigrationSource.MsgErr("no system schema", err)
		}
		return migrator.NewFSSource(fsys), nil
	}
	if path == "" {
		path = s.Config.Tenancy.DefaultMigrationsPath
	}
	if path == "" {
		return nil, dberror.ErrMigrationSource.Msg("no migration path given and tenancy.default_migrations_path is not set")
	}
	return migrator.DirSource(path)
}

// Migrate runs the migrations at path against the databases selected by the --tenant
// flag value.
func (s *Service) Migrate(ctx context.Context, tenantFlag, path string) (*migrator.Report, error) {
	sel := migrator.ParseSelector(tenantFlag)
	src, err := s.Source(sel, path)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("selector", sel.String()).Msg("running migrations")
	return s.Migrator.Run(ctx, sel, src)
}

// MigrateStatus reports applied and pending migrations like Migrate would see them.
func (s *Service) MigrateStatus(ctx context.Context, tenantFlag, path string) (*migrator.Report, error) {
	sel := migrator.ParseSelector(tenantFlag)
	src, err := s.Source(sel, path)
	if err != nil {
		return nil, err
	}
	return s.Migrator.Status(ctx, sel, src)
}

// HTTPHandler puts next behind request logging, panic recovery, a request deadline and the
// per-request tenant switcher.
func (s *Service) HTTPHandler(next http.Handler, timeout time.Duration) http.Handler {
	h := switcher.Middleware(s.Resolver, s.Registry)(next)
	h = middleware.SetTimeout(timeout)(h)
	h = middleware.PanicHandler(h)
	return middleware.RequestLogger(h)
}

// FlushMetrics writes the metrics textfile when one is configured.
func (s *Service) FlushMetrics() error {
	if s.Config.Metrics.Textfile == "" {
		return nil
	}
	if err := s.Metrics.WriteTextfile(s.Config.Metrics.Textfile); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Close releases every database pool.
func (s *Service) Close() error {
	return s.Registry.Close()
}
