// Package sqlstore implements the entity store with squirrel-built SQL that runs on every
// supported driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/dbmanager"
)

// Store is the SQL entity store.
type Store struct {
	db       *sqlx.DB
	sb       sq.StatementBuilderType
	isUnique func(error) bool
}

// New returns a Store over the system pool using driver's placeholder style.
func New(db *sqlx.DB, driver dbmanager.Driver) *Store {
	return &Store{
		db:       db,
		sb:       sq.StatementBuilder.PlaceholderFormat(driver.Placeholder()),
		isUnique: driver.IsUniqueViolation,
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// get runs b and scans one row into dest.
func (s *Store) get(ctx context.Context, dest any, b sq.Sqlizer, what string) error {
	query, args, err := b.ToSql()
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	if err := sqlx.GetContext(ctx, s.db, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Ctx(ctx).Debug().Str("entity", what).Msg("not found")
			return dberror.ErrNotFound.Msg(what + " not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("entity", what).Msg("failed to retrieve")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// list runs b and scans every row into dest.
func (s *Store) list(ctx context.Context, dest any, b sq.Sqlizer, what string) error {
	query, args, err := b.ToSql()
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	if err := sqlx.SelectContext(ctx, s.db, dest, query, args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("entity", what).Msg("failed to list")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// insert runs b and returns the generated id.
func (s *Store) insert(ctx context.Context, b sq.InsertBuilder, what string) (int64, error) {
	query, args, err := b.Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, dberror.ErrDatabase.Err(err)
	}
	var id int64
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if s.isUnique(err) {
			log.Ctx(ctx).Info().Str("entity", what).Msg("already exists")
			return 0, dberror.ErrAlreadyExists.Msg(what + " already exists")
		}
		log.Ctx(ctx).Error().Err(err).Str("entity", what).Msg("failed to insert")
		return 0, dberror.ErrDatabase.Err(err)
	}
	return id, nil
}

// delete runs b and reports ErrNotFound when no row matched.
func (s *Store) delete(ctx context.Context, b sq.DeleteBuilder, what string) error {
	query, args, err := b.ToSql()
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("entity", what).Msg("failed to delete")
		return dberror.ErrDatabase.Err(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	if n == 0 {
		return dberror.ErrNotFound.Msg(what + " not found")
	}
	return nil
}

func (s *Store) exists(ctx context.Context, b sq.SelectBuilder) (bool, error) {
	query, args, err := b.Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, dberror.ErrDatabase.Err(err)
	}
	var found bool
	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&found); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to check existence")
		return false, dberror.ErrDatabase.Err(err)
	}
	return found, nil
}
