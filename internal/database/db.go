package database

import (
	"chat-quota-api/internal/db/migrations"
	appLogger "chat-quota-api/internal/logger"
	"chat-quota-api/internal/models"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(databaseURL string) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	// Configure GORM logger
	gormLogger := logger.New(
		appLogger.Logger,
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogLevel(),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// Open connection
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := RunMigrations(db); err != nil {
		return nil, fmt.Errorf("error migrating database: %v", err)
	}
	return db, nil
}

func gormLogLevel() logger.LogLevel {
	if appLogger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return logger.Info
	}
	return logger.Warn
}

// RunMigrations applies every migration not yet recorded in migration_records,
// each inside its own transaction.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %v", err)
	}

	for _, migration := range migrations.GetMigrations() {
		var record models.MigrationRecord
		result := db.Where("name = ?", migration.Name).First(&record)

		if result.Error == gorm.ErrRecordNotFound {
			appLogger.LogEvent(logrus.InfoLevel, "Running migration", logrus.Fields{
				"migration": migration.Name,
			})

			err := db.Transaction(func(tx *gorm.DB) error {
				if err := migration.Run(tx); err != nil {
					return err
				}

				return tx.Create(&models.MigrationRecord{Name: migration.Name}).Error
			})

			if err != nil {
				return fmt.Errorf("migration '%s' failed: %v", migration.Name, err)
			}
		} else if result.Error != nil {
			return fmt.Errorf("failed to check migration status: %v", result.Error)
		}
	}

	return nil
}
