package dbmanager

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

const pgUniqueViolation = "23505"

// postgresDriver creates one PostgreSQL database per tenant on the server that hosts the
// system database.
type postgresDriver struct {
	cfg config.DBConfig
}

// NewPostgresDriver returns a Driver for the server described by cfg.
func NewPostgresDriver(cfg config.DBConfig) Driver {
	return &postgresDriver{cfg: cfg}
}

func (d *postgresDriver) Name() string { return config.DriverPostgres }

func (d *postgresDriver) Placeholder() sq.PlaceholderFormat { return sq.Dollar }

func (d *postgresDriver) SystemTarget() Target {
	return Target{Database: d.cfg.DBName}
}

func (d *postgresDriver) Open(t Target) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", d.cfg.DSN(t.Database, t.Username, t.Password))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	return db, nil
}

// formatSQLIdentifier formats a name for use in SQL using proper identifier quoting.
func formatSQLIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d *postgresDriver) CreateDatabase(ctx context.Context, sys *sqlx.DB, t Target) error {
	if err := naming.ValidateDatabaseName(t.Database); err != nil {
		return err
	}
	owner := d.cfg.User
	if t.Username != "" {
		if err := naming.ValidateDatabaseName(t.Username); err != nil {
			return fmt.Errorf("invalid role name: %w", err)
		}
		query := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s", formatSQLIdentifier(t.Username), pq.QuoteLiteral(t.Password))
		if _, err := sys.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create role %q: %w", t.Username, err)
		}
		// the system user must be a member to hand ownership over
		query = fmt.Sprintf("GRANT %s TO %s", formatSQLIdentifier(t.Username), formatSQLIdentifier(d.cfg.User))
		if _, err := sys.ExecContext(ctx, query); err != nil {
			d.dropRole(ctx, sys, t.Username)
			return fmt.Errorf("failed to grant role %q: %w", t.Username, err)
		}
		owner = t.Username
	}

	// CREATE DATABASE cannot run inside a transaction block
	query := fmt.Sprintf("CREATE DATABASE %s OWNER %s", formatSQLIdentifier(t.Database), formatSQLIdentifier(owner))
	if _, err := sys.ExecContext(ctx, query); err != nil {
		if t.Username != "" {
			d.dropRole(ctx, sys, t.Username)
		}
		return fmt.Errorf("failed to create database %q: %w", t.Database, err)
	}
	return nil
}

func (d *postgresDriver) DropDatabase(ctx context.Context, sys *sqlx.DB, t Target) error {
	if err := naming.ValidateDatabaseName(t.Database); err != nil {
		return err
	}
	query := fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", formatSQLIdentifier(t.Database))
	if _, err := sys.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to drop database %q: %w", t.Database, err)
	}
	if t.Username != "" {
		query = fmt.Sprintf("DROP ROLE IF EXISTS %s", formatSQLIdentifier(t.Username))
		if _, err := sys.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to drop role %q: %w", t.Username, err)
		}
	}
	return nil
}

func (d *postgresDriver) dropRole(ctx context.Context, sys *sqlx.DB, role string) {
	query := fmt.Sprintf("DROP ROLE IF EXISTS %s", formatSQLIdentifier(role))
	if _, err := sys.ExecContext(ctx, query); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("role", role).Msg("failed to drop role")
	}
}

func (d *postgresDriver) ListDatabases(ctx context.Context, sys *sqlx.DB) ([]string, error) {
	var names []string
	err := sys.SelectContext(ctx, &names, `SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY datname`)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return names, nil
}

func (d *postgresDriver) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (d *postgresDriver) MigrationTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id         BIGSERIAL PRIMARY KEY,
    migration  VARCHAR(255) NOT NULL UNIQUE,
    batch      INTEGER NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, formatSQLIdentifier(table))
}
