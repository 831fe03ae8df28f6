package dbmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tansive/tenancy/internal/tenancy/config"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

const sqliteExt = ".db"

// sqliteDriver keeps every database as a file in one directory. Creating a database
// creates its file; the directory listing is the engine catalogue.
type sqliteDriver struct {
	dataDir string
	system  string
}

// NewSQLiteDriver returns a Driver storing databases under cfg.DataDir.
func NewSQLiteDriver(cfg config.DBConfig) Driver {
	return &sqliteDriver{dataDir: cfg.DataDir, system: cfg.DBName}
}

func (d *sqliteDriver) Name() string { return config.DriverSQLite }

func (d *sqliteDriver) Placeholder() sq.PlaceholderFormat { return sq.Question }

func (d *sqliteDriver) SystemTarget() Target {
	return Target{Database: d.system}
}

func (d *sqliteDriver) path(name string) string {
	return filepath.Join(d.dataDir, name+sqliteExt)
}

// Open opens an existing tenant database; a missing file fails on first use instead of
// being created empty. Only the system database is created on open.
func (d *sqliteDriver) Open(t Target) (*sqlx.DB, error) {
	return d.open(t, t.Database == d.system)
}

func (d *sqliteDriver) open(t Target, create bool) (*sqlx.DB, error) {
	if strings.ContainsAny(t.Database, `/\`) || t.Database == "" {
		return nil, fmt.Errorf("invalid database name %q", t.Database)
	}
	mode := "rw"
	if create {
		mode = "rwc"
		if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", d.dataDir, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		filepath.Clean(d.path(t.Database)), mode)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", t.Database, err)
	}
	return db, nil
}

func (d *sqliteDriver) CreateDatabase(ctx context.Context, _ *sqlx.DB, t Target) error {
	if err := naming.ValidateDatabaseName(t.Database); err != nil {
		return err
	}
	p := d.path(t.Database)
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("database %q already exists", t.Database)
	}
	db, err := d.open(t, true)
	if err != nil {
		return err
	}
	defer db.Close()
	// the file only materialises on first use
	if _, err := db.ExecContext(ctx, `PRAGMA user_version = 0`); err != nil {
		return fmt.Errorf("failed to create database %q: %w", t.Database, err)
	}
	return nil
}

func (d *sqliteDriver) DropDatabase(_ context.Context, _ *sqlx.DB, t Target) error {
	if err := naming.ValidateDatabaseName(t.Database); err != nil {
		return err
	}
	p := d.path(t.Database)
	for _, f := range []string{p, p + "-wal", p + "-shm"} {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to drop database %q: %w", t.Database, err)
		}
	}
	return nil
}

func (d *sqliteDriver) ListDatabases(_ context.Context, _ *sqlx.DB) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(d.dataDir, "*"+sqliteExt))
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), sqliteExt))
	}
	sort.Strings(names)
	return names, nil
}

func (d *sqliteDriver) IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// primary code only when extended codes are off
		return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func (d *sqliteDriver) MigrationTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    migration  VARCHAR(255) NOT NULL UNIQUE,
    batch      INTEGER NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, formatSQLIdentifier(table))
}

// NewDriver picks the driver configured in cfg.
func NewDriver(cfg config.DBConfig) (Driver, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresDriver(cfg), nil
	case config.DriverSQLite:
		return NewSQLiteDriver(cfg), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
