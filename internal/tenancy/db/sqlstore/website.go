package sqlstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
)

var websiteColumns = []string{"w.id AS id", "w.tenant_id AS tenant_id", "w.database_id AS database_id", "w.created_at AS created_at"}

// CreateWebsite inserts a website bound to website.DatabaseID. The binding is part of the
// row, so a website never exists without its database. A database already bound to
// another website yields dberror.ErrAlreadyExists.
func (s *Store) CreateWebsite(ctx context.Context, website *models.Website) error {
	if website == nil || website.TenantID == 0 || website.DatabaseID == 0 {
		return dberror.ErrInvalidInput.Msg("website requires a tenant and a database")
	}
	createdAt := now()
	id, err := s.insert(ctx, s.sb.Insert("websites").
		Columns("tenant_id", "database_id", "created_at").
		Values(website.TenantID, website.DatabaseID, createdAt), "website")
	if err != nil {
		return err
	}
	website.ID = id
	website.CreatedAt = createdAt
	log.Ctx(ctx).Info().Int64("website_id", id).Int64("database_id", website.DatabaseID).Msg("created website")
	return nil
}

// FindWebsiteByID retrieves a website by id.
func (s *Store) FindWebsiteByID(ctx context.Context, id int64) (*models.Website, error) {
	var w models.Website
	if err := s.get(ctx, &w, s.sb.Select(websiteColumns...).From("websites w").Where(sq.Eq{"w.id": id}), "website"); err != nil {
		return nil, err
	}
	return &w, nil
}

// FindWebsiteByHostname retrieves the website a hostname points at.
func (s *Store) FindWebsiteByHostname(ctx context.Context, hostname string) (*models.Website, error) {
	h, err := normalize(hostname)
	if err != nil {
		return nil, err
	}
	var w models.Website
	q := s.sb.Select(websiteColumns...).
		From("websites w").
		Join("hostnames h ON h.website_id = w.id").
		Where(sq.Eq{"h.hostname": h})
	if err := s.get(ctx, &w, q, "website"); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWebsitesByTenant returns the websites of a tenant.
func (s *Store) ListWebsitesByTenant(ctx context.Context, tenantID int64) ([]*models.Website, error) {
	websites := []*models.Website{}
	q := s.sb.Select(websiteColumns...).From("websites w").Where(sq.Eq{"w.tenant_id": tenantID}).OrderBy("w.id")
	if err := s.list(ctx, &websites, q, "website"); err != nil {
		return nil, err
	}
	return websites, nil
}

// DeleteWebsite deletes a website record. Hostnames must be removed first.
func (s *Store) DeleteWebsite(ctx context.Context, id int64) error {
	return s.delete(ctx, s.sb.Delete("websites").Where(sq.Eq{"id": id}), "website")
}
