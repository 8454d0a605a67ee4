package models

import (
	"time"
)

// UsageRecord counts a user's admitted chat requests inside one rolling window
// anchored at FirstRequestAt. Expired rows are hard-deleted, never archived.
type UsageRecord struct {
	ID             uint      `gorm:"primarykey" json:"-"`
	UserID         string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"user_id"`
	RequestCount   int       `gorm:"not null;default:0" json:"request_count"`
	FirstRequestAt time.Time `gorm:"not null;index" json:"first_request_at"`
	LastRequestAt  time.Time `gorm:"not null" json:"last_request_at"`
	CreatedAt      time.Time `json:"-"`
	UpdatedAt      time.Time `json:"-"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// ResetAt is the instant the window closes.
func (r *UsageRecord) ResetAt(window time.Duration) time.Time {
	return r.FirstRequestAt.Add(window)
}

// Live reports whether now falls inside [FirstRequestAt, FirstRequestAt+window).
func (r *UsageRecord) Live(now time.Time, window time.Duration) bool {
	return now.Before(r.ResetAt(window))
}
