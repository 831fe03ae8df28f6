// Package switcher scopes the "current" tenant database to one execution context.
//
// A Switcher is created per request, command or migration target and is never shared.
// It starts on the system database; SetCurrent points it at a tenant database without
// opening anything, and Conn hands out a dedicated connection taken from the shared
// pool of that database. Close releases every connection the switcher took.
package switcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/apperrors"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

// Pools hands out shared pools by database. dbmanager.Registry implements it.
type Pools interface {
	DB(ctx context.Context, d *models.Database) (*sqlx.DB, error)
	System() *sqlx.DB
}

var ErrSwitcherClosed = dberror.ErrDatabase.New("switcher is closed")

// Switcher holds the current database of one execution context.
type Switcher struct {
	pools Pools

	mu      sync.Mutex
	current *models.Database
	conns   map[string]*sqlx.Conn
	closed  bool
}

// New returns a Switcher whose current database is the system database.
func New(pools Pools) *Switcher {
	return &Switcher{
		pools: pools,
		conns: make(map[string]*sqlx.Conn),
	}
}

// SetCurrent makes d the current database. A nil d is the same as Reset.
// Nothing is opened until Conn or DB is called.
func (s *Switcher) SetCurrent(d *models.Database) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = d
}

// Current returns the current tenant database, or nil while on the system database.
func (s *Switcher) Current() *models.Database {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CurrentName returns the name of the current database, "system" for the system database.
func (s *Switcher) CurrentName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return naming.SystemDatabaseAlias
	}
	return s.current.Name
}

// Reset switches back to the system database. Connections already taken stay cached
// until Close.
func (s *Switcher) Reset() {
	s.SetCurrent(nil)
}

// System returns the system pool regardless of the current database.
func (s *Switcher) System() *sqlx.DB {
	return s.pools.System()
}

// DB returns the shared pool of the current database.
func (s *Switcher) DB(ctx context.Context) (*sqlx.DB, error) {
	s.mu.Lock()
	current, closed := s.current, s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSwitcherClosed
	}
	return s.pool(ctx, current)
}

func (s *Switcher) pool(ctx context.Context, d *models.Database) (*sqlx.DB, error) {
	if d == nil {
		return s.pools.System(), nil
	}
	return s.pools.DB(ctx, d)
}

// Conn returns a dedicated connection to the current database. The first call for a
// database takes a connection from its pool; later calls return the same connection
// until Close.
func (s *Switcher) Conn(ctx context.Context) (*sqlx.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSwitcherClosed
	}
	key := naming.SystemDatabaseAlias
	if s.current != nil {
		key = s.current.Name
	}
	if conn, ok := s.conns[key]; ok {
		return conn, nil
	}
	pool, err := s.pool(ctx, s.current)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Connx(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("database", key).Msg("unable to acquire connection")
		return nil, dberror.ErrConnectivity.MsgErr(fmt.Sprintf("unable to acquire connection to %s", key), err)
	}
	s.conns[key] = conn
	return conn, nil
}

// Close releases every connection taken by the switcher. It is safe to call more than once.
func (s *Switcher) Close(ctx context.Context) error {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[string]*sqlx.Conn)
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for name, conn := range conns {
		if err := conn.Close(); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("database", name).Msg("unable to release connection")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperrors.New("unable to release connections").Err(errs...)
	}
	return nil
}

type ctxKeyType string

const ctxSwitcherKey ctxKeyType = "TenancySwitcher"

// WithSwitcher returns a copy of ctx carrying s.
func WithSwitcher(ctx context.Context, s *Switcher) context.Context {
	return context.WithValue(ctx, ctxSwitcherKey, s)
}

// FromContext returns the Switcher stored in ctx, or nil.
func FromContext(ctx context.Context) *Switcher {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxSwitcherKey).(*Switcher)
	return s
}
