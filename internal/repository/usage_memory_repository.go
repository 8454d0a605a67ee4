package repository

import (
	"chat-quota-api/internal/models"
	"context"
	"sync"
	"time"
)

// MemoryUsageRepository is an in-process UsageRepository for development and tests.
type MemoryUsageRepository struct {
	mu      sync.Mutex
	records map[string]models.UsageRecord
}

var _ UsageRepository = (*MemoryUsageRepository)(nil)

func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{
		records: make(map[string]models.UsageRecord),
	}
}

func (r *MemoryUsageRepository) FindByUserID(_ context.Context, userID string) (*models.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (r *MemoryUsageRepository) Increment(_ context.Context, userID string, now time.Time, window time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok || !record.Live(now, window) {
		r.records[userID] = models.UsageRecord{
			UserID:         userID,
			RequestCount:   1,
			FirstRequestAt: now,
			LastRequestAt:  now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return nil
	}

	record.RequestCount++
	record.LastRequestAt = now
	record.UpdatedAt = now
	r.records[userID] = record
	return nil
}

func (r *MemoryUsageRepository) DeleteExpired(_ context.Context, userID string, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.records[userID]; ok && !record.FirstRequestAt.After(cutoff) {
		delete(r.records, userID)
	}
	return nil
}

// Len returns the number of stored rows.
func (r *MemoryUsageRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
