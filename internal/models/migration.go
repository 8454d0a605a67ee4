package models

import "gorm.io/gorm"

// MigrationRecord marks a schema migration as applied. Name matches the entry
// in migrations.GetMigrations.
type MigrationRecord struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;size:255"`
}
