package sqlstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

var databaseColumns = []string{"d.id AS id", "d.name AS name", "d.driver AS driver", "d.username AS username", "d.created_at AS created_at"}

// CreateDatabase records a database descriptor. The name must already be a safe identifier.
func (s *Store) CreateDatabase(ctx context.Context, database *models.Database) error {
	if database == nil {
		return dberror.ErrInvalidInput.Msg("database is required")
	}
	if err := naming.ValidateDatabaseName(database.Name); err != nil {
		return dberror.ErrInvalidInput.MsgErr("invalid database name", err)
	}
	createdAt := now()
	id, err := s.insert(ctx, s.sb.Insert("databases").
		Columns("name", "driver", "username", "created_at").
		Values(database.Name, database.Driver, database.Username, createdAt), "database")
	if err != nil {
		return err
	}
	database.ID = id
	database.CreatedAt = createdAt
	log.Ctx(ctx).Info().Int64("database_id", id).Str("database", database.Name).Msg("created database record")
	return nil
}

// FindDatabaseByID retrieves a database descriptor by id.
func (s *Store) FindDatabaseByID(ctx context.Context, id int64) (*models.Database, error) {
	var d models.Database
	if err := s.get(ctx, &d, s.sb.Select(databaseColumns...).From("databases d").Where(sq.Eq{"d.id": id}), "database"); err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDatabaseByName retrieves a database descriptor by name.
func (s *Store) FindDatabaseByName(ctx context.Context, name string) (*models.Database, error) {
	var d models.Database
	if err := s.get(ctx, &d, s.sb.Select(databaseColumns...).From("databases d").Where(sq.Eq{"d.name": name}), "database"); err != nil {
		return nil, err
	}
	return &d, nil
}

// FindDatabaseByHostname follows hostname -> website -> database in one query.
func (s *Store) FindDatabaseByHostname(ctx context.Context, hostname string) (*models.Database, error) {
	h, err := normalize(hostname)
	if err != nil {
		return nil, err
	}
	var d models.Database
	q := s.sb.Select(databaseColumns...).
		From("databases d").
		Join("websites w ON w.database_id = d.id").
		Join("hostnames h ON h.website_id = w.id").
		Where(sq.Eq{"h.hostname": h})
	if err := s.get(ctx, &d, q, "database"); err != nil {
		return nil, err
	}
	return &d, nil
}

// DatabaseNameExists reports whether a descriptor with name is recorded.
func (s *Store) DatabaseNameExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, s.sb.Select("1").From("databases").Where(sq.Eq{"name": name}))
}

// ListDatabases returns every database bound to a website, ordered by id.
func (s *Store) ListDatabases(ctx context.Context) ([]*models.Database, error) {
	databases := []*models.Database{}
	q := s.sb.Select(databaseColumns...).
		From("databases d").
		Join("websites w ON w.database_id = d.id").
		OrderBy("d.id")
	if err := s.list(ctx, &databases, q, "database"); err != nil {
		return nil, err
	}
	return databases, nil
}

// ListTenantDatabases returns the databases of every website of the named tenant.
// An unknown tenant yields dberror.ErrNotFound.
func (s *Store) ListTenantDatabases(ctx context.Context, tenantName string) ([]*models.Database, error) {
	tenant, err := s.FindTenantByName(ctx, tenantName)
	if err != nil {
		return nil, err
	}
	databases := []*models.Database{}
	q := s.sb.Select(databaseColumns...).
		From("databases d").
		Join("websites w ON w.database_id = d.id").
		Where(sq.Eq{"w.tenant_id": tenant.ID}).
		OrderBy("d.id")
	if err := s.list(ctx, &databases, q, "database"); err != nil {
		return nil, err
	}
	return databases, nil
}

// DeleteDatabase deletes a database descriptor. The physical database is not touched.
func (s *Store) DeleteDatabase(ctx context.Context, id int64) error {
	return s.delete(ctx, s.sb.Delete("databases").Where(sq.Eq{"id": id}), "database")
}
