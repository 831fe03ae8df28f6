package sqlstore

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/naming"
)

var hostnameColumns = []string{"id", "hostname", "tenant_id", "website_id", "created_at"}

func normalize(hostname string) (string, error) {
	h, err := naming.NormalizeHostname(hostname)
	if err != nil {
		return "", dberror.ErrInvalidInput.MsgErr("invalid hostname", err)
	}
	return h, nil
}

// CreateHostname binds a hostname to a website. The stored hostname is normalised and
// written back to hostname.Hostname.
func (s *Store) CreateHostname(ctx context.Context, hostname *models.Hostname) error {
	if hostname == nil || hostname.TenantID == 0 || hostname.WebsiteID == 0 {
		return dberror.ErrInvalidInput.Msg("hostname requires a tenant and a website")
	}
	h, err := normalize(hostname.Hostname)
	if err != nil {
		return err
	}
	createdAt := now()
	id, err := s.insert(ctx, s.sb.Insert("hostnames").
		Columns("hostname", "tenant_id", "website_id", "created_at").
		Values(h, hostname.TenantID, hostname.WebsiteID, createdAt), "hostname")
	if err != nil {
		return err
	}
	hostname.ID = id
	hostname.Hostname = h
	hostname.CreatedAt = createdAt
	log.Ctx(ctx).Info().Str("hostname", h).Int64("website_id", hostname.WebsiteID).Msg("created hostname")
	return nil
}

// FindHostnameByHostname retrieves a hostname record.
func (s *Store) FindHostnameByHostname(ctx context.Context, hostname string) (*models.Hostname, error) {
	h, err := normalize(hostname)
	if err != nil {
		return nil, err
	}
	var rec models.Hostname
	if err := s.get(ctx, &rec, s.sb.Select(hostnameColumns...).From("hostnames").Where(sq.Eq{"hostname": h}), "hostname"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListHostnamesByWebsite returns the hostnames pointing at a website.
func (s *Store) ListHostnamesByWebsite(ctx context.Context, websiteID int64) ([]*models.Hostname, error) {
	hostnames := []*models.Hostname{}
	q := s.sb.Select(hostnameColumns...).From("hostnames").Where(sq.Eq{"website_id": websiteID}).OrderBy("id")
	if err := s.list(ctx, &hostnames, q, "hostname"); err != nil {
		return nil, err
	}
	return hostnames, nil
}

// DeleteHostname deletes a hostname record.
func (s *Store) DeleteHostname(ctx context.Context, id int64) error {
	return s.delete(ctx, s.sb.Delete("hostnames").Where(sq.Eq{"id": id}), "hostname")
}
