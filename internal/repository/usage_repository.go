package repository

import (
	"chat-quota-api/internal/models"
	"chat-quota-api/internal/pkg/errors"
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// maxIncrementAttempts bounds the update/insert loop when concurrent first
// requests keep colliding on the unique user_id index.
const maxIncrementAttempts = 3

type UsageRepository interface {
	// FindByUserID returns nil, nil when the user has no row.
	FindByUserID(ctx context.Context, userID string) (*models.UsageRecord, error)
	// Increment counts one request: live windows are bumped, expired windows
	// restart at now, and a missing row is inserted.
	Increment(ctx context.Context, userID string, now time.Time, window time.Duration) error
	// DeleteExpired removes the row only if its window started at or before cutoff.
	DeleteExpired(ctx context.Context, userID string, cutoff time.Time) error
}

type usageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) FindByUserID(ctx context.Context, userID string) (*models.UsageRecord, error) {
	var record models.UsageRecord
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Unavailable(err, "failed to get usage record")
	}
	return &record, nil
}

func (r *usageRepository) Increment(ctx context.Context, userID string, now time.Time, window time.Duration) error {
	cutoff := now.Add(-window)

	for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
		// Live window: single-statement increment, no read-modify-write.
		result := r.db.WithContext(ctx).Model(&models.UsageRecord{}).
			Where("user_id = ? AND first_request_at > ?", userID, cutoff).
			Updates(map[string]interface{}{
				"request_count":   gorm.Expr("request_count + ?", 1),
				"last_request_at": now,
			})
		if result.Error != nil {
			return errors.Unavailable(result.Error, "failed to increment usage record")
		}
		if result.RowsAffected == 1 {
			return nil
		}

		// Expired window: restart it in place.
		result = r.db.WithContext(ctx).Model(&models.UsageRecord{}).
			Where("user_id = ? AND first_request_at <= ?", userID, cutoff).
			Updates(map[string]interface{}{
				"request_count":    1,
				"first_request_at": now,
				"last_request_at":  now,
			})
		if result.Error != nil {
			return errors.Unavailable(result.Error, "failed to restart usage window")
		}
		if result.RowsAffected == 1 {
			return nil
		}

		record := &models.UsageRecord{
			UserID:         userID,
			RequestCount:   1,
			FirstRequestAt: now,
			LastRequestAt:  now,
		}
		err := r.db.WithContext(ctx).Create(record).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKey(err) {
			return errors.Unavailable(err, "failed to create usage record")
		}
		// Someone else inserted the row between our update and insert; go again as an update.
	}

	return errors.Wrap(errors.ErrDuplicateWindow, "failed to increment usage record")
}

func (r *usageRepository) DeleteExpired(ctx context.Context, userID string, cutoff time.Time) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND first_request_at <= ?", userID, cutoff).
		Delete(&models.UsageRecord{})
	if result.Error != nil {
		return errors.Unavailable(result.Error, "failed to delete usage record")
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
