package models

import "time"

// MigrationRecord is a row of the migrations table kept inside every database.
type MigrationRecord struct {
	ID        int64     `db:"id" json:"id" yaml:"id"`
	Migration string    `db:"migration" json:"migration" yaml:"migration"`
	Batch     int       `db:"batch" json:"batch" yaml:"batch"`
	AppliedAt time.Time `db:"applied_at" json:"applied_at" yaml:"applied_at"`
}
