// Package db defines the tenancy entity store. Tenants, hostnames, websites and database
// descriptors live in the system database and are only reached through EntityStore.
//
// Lookups return dberror.ErrNotFound on a miss; callers decide whether absence is an
// error. Writes are single-row statements. Multi-step atomicity belongs to the
// provisioner, which compensates failed steps itself.
package db

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/tansive/tenancy/internal/tenancy/db/dbmanager"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/db/sqlstore"
)

// TenantManager handles tenant records.
type TenantManager interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	FindTenantByName(ctx context.Context, name string) (*models.Tenant, error)
	FindTenantByID(ctx context.Context, id int64) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
	// DeleteTenant fails with dberror.ErrTenantInUse while hostnames or websites reference the tenant.
	DeleteTenant(ctx context.Context, id int64) error
}

// HostnameManager handles hostname records. Hostnames are normalised before they are
// stored or looked up.
type HostnameManager interface {
	CreateHostname(ctx context.Context, hostname *models.Hostname) error
	FindHostnameByHostname(ctx context.Context, hostname string) (*models.Hostname, error)
	ListHostnamesByWebsite(ctx context.Context, websiteID int64) ([]*models.Hostname, error)
	DeleteHostname(ctx context.Context, id int64) error
}

// WebsiteManager handles website records and their database binding.
type WebsiteManager interface {
	CreateWebsite(ctx context.Context, website *models.Website) error
	FindWebsiteByID(ctx context.Context, id int64) (*models.Website, error)
	FindWebsiteByHostname(ctx context.Context, hostname string) (*models.Website, error)
	ListWebsitesByTenant(ctx context.Context, tenantID int64) ([]*models.Website, error)
	DeleteWebsite(ctx context.Context, id int64) error
}

// DatabaseManager handles database descriptors.
type DatabaseManager interface {
	CreateDatabase(ctx context.Context, database *models.Database) error
	FindDatabaseByID(ctx context.Context, id int64) (*models.Database, error)
	FindDatabaseByName(ctx context.Context, name string) (*models.Database, error)
	FindDatabaseByHostname(ctx context.Context, hostname string) (*models.Database, error)
	DatabaseNameExists(ctx context.Context, name string) (bool, error)
	ListDatabases(ctx context.Context) ([]*models.Database, error)
	ListTenantDatabases(ctx context.Context, tenantName string) ([]*models.Database, error)
	DeleteDatabase(ctx context.Context, id int64) error
}

// EntityStore combines the record managers of the system database.
type EntityStore interface {
	TenantManager
	HostnameManager
	WebsiteManager
	DatabaseManager
}

// NewEntityStore returns the store backed by the system pool sys.
func NewEntityStore(sys *sqlx.DB, driver dbmanager.Driver) EntityStore {
	return sqlstore.New(sys, driver)
}
