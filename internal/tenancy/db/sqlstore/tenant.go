package sqlstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
)

var tenantColumns = []string{"id", "name", "email", "created_at"}

// CreateTenant inserts a new tenant and sets its ID and CreatedAt.
// A duplicate name yields dberror.ErrAlreadyExists.
func (s *Store) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant == nil || tenant.Name == "" {
		return dberror.ErrInvalidInput.Msg("tenant name is required")
	}
	createdAt := now()
	id, err := s.insert(ctx, s.sb.Insert("tenants").
		Columns("name", "email", "created_at").
		Values(tenant.Name, tenant.Email, createdAt), "tenant")
	if err != nil {
		return err
	}
	tenant.ID = id
	tenant.CreatedAt = createdAt
	log.Ctx(ctx).Info().Int64("tenant_id", id).Str("tenant", tenant.Name).Msg("created tenant")
	return nil
}

// FindTenantByName retrieves a tenant by its unique name.
func (s *Store) FindTenantByName(ctx context.Context, name string) (*models.Tenant, error) {
	var t models.Tenant
	if err := s.get(ctx, &t, s.sb.Select(tenantColumns...).From("tenants").Where(sq.Eq{"name": name}), "tenant"); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTenantByID retrieves a tenant by id.
func (s *Store) FindTenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	var t models.Tenant
	if err := s.get(ctx, &t, s.sb.Select(tenantColumns...).From("tenants").Where(sq.Eq{"id": id}), "tenant"); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTenants returns all tenants ordered by id.
func (s *Store) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	tenants := []*models.Tenant{}
	if err := s.list(ctx, &tenants, s.sb.Select(tenantColumns...).From("tenants").OrderBy("id"), "tenant"); err != nil {
		return nil, err
	}
	return tenants, nil
}

// DeleteTenant deletes a tenant that no longer owns hostnames or websites.
func (s *Store) DeleteTenant(ctx context.Context, id int64) error {
	inUse, err := s.exists(ctx, s.sb.Select("1").From("hostnames").Where(sq.Eq{"tenant_id": id}))
	if err != nil {
		return err
	}
	if !inUse {
		inUse, err = s.exists(ctx, s.sb.Select("1").From("websites").Where(sq.Eq{"tenant_id": id}))
		if err != nil {
			return err
		}
	}
	if inUse {
		log.Ctx(ctx).Info().Int64("tenant_id", id).Msg("tenant still in use")
		return dberror.ErrTenantInUse
	}
	return s.delete(ctx, s.sb.Delete("tenants").Where(sq.Eq{"id": id}), "tenant")
}
