package dbmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/apperrors"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
)

// PoolOptions configures every pool the registry opens.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingAttempts    uint
	PingDelay       time.Duration
}

// Registry hands out one pool per physical database, keyed by database name. Pools are
// opened on first use and live until evicted or the registry is closed. It is the only
// state shared between execution contexts and is safe for concurrent use.
type Registry struct {
	driver Driver
	creds  *Credentials
	opts   PoolOptions

	system     *sqlx.DB
	systemName string

	mu    sync.Mutex
	pools map[string]*sqlx.DB

	poolOpens  uint64
	poolCloses uint64
}

// NewRegistry opens and pings the system database.
func NewRegistry(ctx context.Context, driver Driver, creds *Credentials, opts PoolOptions) (*Registry, error) {
	if opts.PingAttempts == 0 {
		opts.PingAttempts = 1
	}
	if opts.PingDelay == 0 {
		opts.PingDelay = 200 * time.Millisecond
	}
	r := &Registry{
		driver: driver,
		creds:  creds,
		opts:   opts,
		pools:  make(map[string]*sqlx.DB),
	}
	t := driver.SystemTarget()
	sys, err := r.open(ctx, t)
	if err != nil {
		return nil, err
	}
	r.system = sys
	r.systemName = t.Database
	return r, nil
}

// Driver returns the driver the registry was built with.
func (r *Registry) Driver() Driver {
	return r.driver
}

// Credentials returns the tenant credential deriver.
func (r *Registry) Credentials() *Credentials {
	return r.creds
}

// System returns the system database pool.
func (r *Registry) System() *sqlx.DB {
	return r.system
}

// SystemName is the name of the system database.
func (r *Registry) SystemName() string {
	return r.systemName
}

// DB returns the pool for d, opening and pinging it on first use. A database that cannot
// be reached yields dberror.ErrConnectivity.
func (r *Registry) DB(ctx context.Context, d *models.Database) (*sqlx.DB, error) {
	if d == nil {
		return nil, dberror.ErrInvalidInput.Msg("database descriptor is required")
	}
	if d.Name == r.systemName {
		return r.system, nil
	}

	r.mu.Lock()
	db, ok := r.pools[d.Name]
	r.mu.Unlock()
	if ok {
		return db, nil
	}

	t, err := r.creds.Target(d.Name, d.Username)
	if err != nil {
		return nil, dberror.ErrDatabase.MsgErr("unable to derive credentials", err)
	}
	db, err = r.open(ctx, t)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.pools[d.Name]; ok {
		// another context won the race
		db.Close()
		atomic.AddUint64(&r.poolCloses, 1)
		return existing, nil
	}
	r.pools[d.Name] = db
	log.Ctx(ctx).Debug().Str("database", d.Name).Msg("opened database pool")
	return db, nil
}

func (r *Registry) open(ctx context.Context, t Target) (*sqlx.DB, error) {
	db, err := r.driver.Open(t)
	if err != nil {
		return nil, dberror.ErrConnectivity.MsgErr(fmt.Sprintf("unable to open database %s", t.Database), err)
	}
	db.SetMaxOpenConns(r.opts.MaxOpenConns)
	db.SetMaxIdleConns(r.opts.MaxIdleConns)
	db.SetConnMaxLifetime(r.opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(r.opts.ConnMaxIdleTime)

	err = retry.Do(func() error {
		return db.PingContext(ctx)
	},
		retry.Context(ctx),
		retry.Attempts(r.opts.PingAttempts),
		retry.Delay(r.opts.PingDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		db.Close()
		log.Ctx(ctx).Error().Err(err).Str("database", t.Database).Msg("failed to ping database")
		return nil, dberror.ErrConnectivity.MsgErr(fmt.Sprintf("database %s unreachable", t.Database), err)
	}
	atomic.AddUint64(&r.poolOpens, 1)
	return db, nil
}

// Evict closes and forgets the pool of the named database. Evicting an unknown name is a no-op.
func (r *Registry) Evict(name string) error {
	r.mu.Lock()
	db, ok := r.pools[name]
	delete(r.pools, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	atomic.AddUint64(&r.poolCloses, 1)
	return db.Close()
}

// Len returns the number of open tenant pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Stats returns the number of pools opened and closed, the system pool included.
func (r *Registry) Stats() (opens, closes uint64) {
	return atomic.LoadUint64(&r.poolOpens), atomic.LoadUint64(&r.poolCloses)
}

// Close closes every tenant pool and the system pool.
func (r *Registry) Close() error {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*sqlx.DB)
	r.mu.Unlock()

	var errs []error
	for name, db := range pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		atomic.AddUint64(&r.poolCloses, 1)
	}
	if r.system != nil {
		if err := r.system.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close system: %w", err))
		}
		atomic.AddUint64(&r.poolCloses, 1)
	}
	if len(errs) > 0 {
		return apperrors.New("unable to close database pools").Err(errs...)
	}
	return nil
}
