// Package dbmanager owns physical databases: it creates and drops them through a Driver
// and hands out connection pools keyed by database name.
package dbmanager

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Target identifies a physical database and the credentials used to reach it.
// Empty Username means the system credentials.
type Target struct {
	Database string
	Username string
	Password string
}

// Driver abstracts the engine specific parts of tenancy: connecting, administrative
// statements and error classification. Administrative methods run on the system pool.
type Driver interface {
	// Name is the value stored in the driver column of database records.
	Name() string
	// Placeholder is the bind parameter style for squirrel builders.
	Placeholder() sq.PlaceholderFormat
	// SystemTarget returns the target of the system database.
	SystemTarget() Target
	// Open returns a pool for t. It does not ping.
	Open(t Target) (*sqlx.DB, error)
	// CreateDatabase creates the database of t, and its login role if t.Username is set.
	CreateDatabase(ctx context.Context, sys *sqlx.DB, t Target) error
	// DropDatabase removes the database of t and its role. Missing objects are not an error.
	DropDatabase(ctx context.Context, sys *sqlx.DB, t Target) error
	// ListDatabases returns the names of databases known to the engine.
	ListDatabases(ctx context.Context, sys *sqlx.DB) ([]string, error)
	// IsUniqueViolation reports whether err is a unique constraint violation.
	IsUniqueViolation(err error) bool
	// MigrationTableDDL creates the named migration history table if it does not exist.
	MigrationTableDDL(table string) string
}
