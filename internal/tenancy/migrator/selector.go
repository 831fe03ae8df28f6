package migrator

import (
	"strings"

	"github.com/tansive/tenancy/internal/tenancy/db/models"
)

type selectorKind int

const (
	selectSystem selectorKind = iota
	selectAllTenants
	selectTenant
	selectDatabases
)

// Selector picks the databases a run targets.
type Selector struct {
	kind      selectorKind
	tenant    string
	databases []*models.Database
}

// System targets the system database.
func System() Selector {
	return Selector{kind: selectSystem}
}

// AllTenants targets the database of every website.
func AllTenants() Selector {
	return Selector{kind: selectAllTenants}
}

// Tenant targets the databases of the websites of the named tenant.
func Tenant(name string) Selector {
	return Selector{kind: selectTenant, tenant: name}
}

// Databases targets the given databases.
func Databases(databases ...*models.Database) Selector {
	return Selector{kind: selectDatabases, databases: databases}
}

// ParseSelector maps the value of the --tenant flag: empty is the system database,
// "true" or "all" every tenant, anything else a tenant name.
func ParseSelector(flag string) Selector {
	flag = strings.TrimSpace(flag)
	switch strings.ToLower(flag) {
	case "":
		return System()
	case "true", "all":
		return AllTenants()
	}
	return Tenant(flag)
}

// IsSystem reports whether s targets the system database.
func (s Selector) IsSystem() bool {
	return s.kind == selectSystem
}

func (s Selector) String() string {
	switch s.kind {
	case selectAllTenants:
		return "all tenants"
	case selectTenant:
		return "tenant " + s.tenant
	case selectDatabases:
		names := make([]string, 0, len(s.databases))
		for _, d := range s.databases {
			names = append(names, d.Name)
		}
		return "databases " + strings.Join(names, ",")
	}
	return "system"
}
