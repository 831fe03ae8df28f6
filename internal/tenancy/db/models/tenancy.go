package models

import (
	"time"
)

type Tenant struct {
	ID        int64     `db:"id" json:"id" yaml:"id"`
	Name      string    `db:"name" json:"name" yaml:"name"`
	Email     string    `db:"email" json:"email" yaml:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
}

type Hostname struct {
	ID        int64     `db:"id" json:"id" yaml:"id"`
	Hostname  string    `db:"hostname" json:"hostname" yaml:"hostname"`
	TenantID  int64     `db:"tenant_id" json:"tenant_id" yaml:"tenant_id"`
	WebsiteID int64     `db:"website_id" json:"website_id" yaml:"website_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
}

// Website is bound to exactly one Database for its whole life.
type Website struct {
	ID         int64     `db:"id" json:"id" yaml:"id"`
	TenantID   int64     `db:"tenant_id" json:"tenant_id" yaml:"tenant_id"`
	DatabaseID int64     `db:"database_id" json:"database_id" yaml:"database_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
}

// Database describes a physical database. Username is empty when the database is
// reached with the system credentials; passwords are derived, never stored.
type Database struct {
	ID        int64     `db:"id" json:"id" yaml:"id"`
	Name      string    `db:"name" json:"name" yaml:"name"`
	Driver    string    `db:"driver" json:"driver" yaml:"driver"`
	Username  string    `db:"username" json:"username,omitempty" yaml:"username,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
}
