package migrations

import (
	"chat-quota-api/internal/models"

	"gorm.io/gorm"
)

type Migration struct {
	Name string
	Run  func(*gorm.DB) error
}

// GetMigrations lists schema changes in the order they must be applied.
// Append only; names are recorded once applied. CreateUsageRecordsTable also
// creates idx_usage_records_first_request_at from the model's index tag.
func GetMigrations() []Migration {
	return []Migration{
		{
			Name: "CreateUsageRecordsTable",
			Run: func(db *gorm.DB) error {
				return db.AutoMigrate(&models.UsageRecord{})
			},
		},
	}
}
