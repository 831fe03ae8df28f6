// Package resolver maps a request hostname to the database of the website it belongs to.
package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

// Lookup is the part of the entity store the resolver reads.
type Lookup interface {
	FindDatabaseByHostname(ctx context.Context, hostname string) (*models.Database, error)
}

// Pools hands out shared pools by database. dbmanager.Registry implements it.
type Pools interface {
	DB(ctx context.Context, d *models.Database) (*sqlx.DB, error)
}

// DefaultCacheTTL is how long a resolution is reused before the entity store is asked again.
const DefaultCacheTTL = 30 * time.Second

// Option configures a Resolver.
type Option func(*Resolver)

// WithoutCache makes every Resolve go to the entity store.
func WithoutCache() Option {
	return func(r *Resolver) { r.cache = nil }
}

// WithCacheTTL sets how long cached resolutions stay valid.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

type cacheEntry struct {
	handle  *Handle
	expires time.Time
}

// Resolver resolves hostnames through Hostname -> Website -> Database. It is safe for
// concurrent use.
type Resolver struct {
	lookup Lookup
	pools  Pools
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// New returns a caching Resolver. Cached resolutions expire after DefaultCacheTTL unless
// WithCacheTTL says otherwise. Only Invalidate on this Resolver drops an entry early, so
// hostnames deleted or rebound by another process are seen once their entry expires.
// Expired entries are replaced on the next lookup of the same hostname; the cache holds
// at most one entry per hostname ever resolved.
func New(lookup Lookup, pools Pools, opts ...Option) *Resolver {
	r := &Resolver{
		lookup: lookup,
		pools:  pools,
		ttl:    DefaultCacheTTL,
		cache:  make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the database descriptor of hostname. No connection is opened.
// Unknown hostnames yield dberror.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (*models.Database, error) {
	h, err := r.Handle(ctx, hostname)
	if err != nil {
		return nil, err
	}
	return h.Database, nil
}

// Handle returns a lazy handle to the database of hostname. The pool is opened on the
// first call to Handle.DB or Handle.Ping.
func (r *Resolver) Handle(ctx context.Context, hostname string) (*Handle, error) {
	host, err := naming.NormalizeHostname(hostname)
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid hostname", err)
	}

	if h := r.cached(host); h != nil {
		return h, nil
	}

	d, err := r.lookup.FindDatabaseByHostname(ctx, host)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("hostname", host).Msg("hostname not resolved")
		return nil, err
	}
	h := &Handle{Hostname: host, Database: d, pools: r.pools}

	if r.cache == nil {
		return h, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if e, ok := r.cache[host]; ok && now.Before(e.expires) {
		return e.handle, nil
	}
	r.cache[host] = cacheEntry{handle: h, expires: now.Add(r.ttl)}
	log.Ctx(ctx).Debug().Str("hostname", host).Str("database", d.Name).Msg("resolved hostname")
	return h, nil
}

func (r *Resolver) cached(host string) *Handle {
	if r.cache == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[host]
	if !ok || !time.Now().Before(e.expires) {
		return nil
	}
	return e.handle
}

// Invalidate forgets the cached resolution of hostname.
func (r *Resolver) Invalidate(hostname string) {
	host, err := naming.NormalizeHostname(hostname)
	if err != nil || r.cache == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, host)
}

// Handle is a resolved hostname whose connection is opened on demand.
type Handle struct {
	Hostname string
	Database *models.Database

	pools Pools
}

// DB returns the shared pool of the database, opening it on first use.
// An unreachable database yields dberror.ErrConnectivity.
func (h *Handle) DB(ctx context.Context) (*sqlx.DB, error) {
	return h.pools.DB(ctx, h.Database)
}

// Ping checks that the database answers.
func (h *Handle) Ping(ctx context.Context) error {
	db, err := h.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("database", h.Database.Name).Msg("ping failed")
		return dberror.ErrConnectivity.MsgErr(fmt.Sprintf("database %s unreachable", h.Database.Name), err)
	}
	return nil
}
