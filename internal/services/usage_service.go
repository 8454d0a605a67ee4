package services

import (
	"chat-quota-api/internal/config"
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/metrics"
	"chat-quota-api/internal/models"
	"chat-quota-api/internal/pkg/errors"
	"chat-quota-api/internal/repository"
	"context"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

// DefaultWindow is the length of a rolling usage window.
const DefaultWindow = 24 * time.Hour

// FailurePolicy decides admission when usage cannot be read.
type FailurePolicy int

const (
	// FailOpen admits the request and marks the admission degraded.
	FailOpen FailurePolicy = iota
	// FailClosed surfaces the storage error so the caller can refuse.
	FailClosed
)

type UsageService interface {
	GetRequestCount(ctx context.Context, userID string) (int, error)
	GetResetTime(ctx context.Context, userID string) (*time.Time, error)
	IncrementRequestCount(ctx context.Context, userID string) error
	GetUsage(ctx context.Context, identity models.Identity) (*UsageStats, error)
	CheckAdmission(ctx context.Context, identity models.Identity) (*Admission, error)
}

type UsageStats struct {
	MessagesUsed int
	MaxMessages  int
	MessagesLeft int
	ResetTime    *time.Time
}

type Admission struct {
	Allowed  bool
	Degraded bool
	Stats    UsageStats
}

type UsageOption func(*usageService)

func WithClock(clock quartz.Clock) UsageOption {
	return func(s *usageService) { s.clock = clock }
}

func WithWindow(window time.Duration) UsageOption {
	return func(s *usageService) { s.window = window }
}

func WithFailurePolicy(policy FailurePolicy) UsageOption {
	return func(s *usageService) { s.policy = policy }
}

func WithMetrics(m *metrics.Metrics) UsageOption {
	return func(s *usageService) { s.metrics = m }
}

type usageService struct {
	repo         repository.UsageRepository
	entitlements *config.Entitlements
	clock        quartz.Clock
	window       time.Duration
	policy       FailurePolicy
	metrics      *metrics.Metrics
}

func NewUsageService(repo repository.UsageRepository, entitlements *config.Entitlements, opts ...UsageOption) UsageService {
	s := &usageService{
		repo:         repo,
		entitlements: entitlements,
		clock:        quartz.NewReal(),
		window:       DefaultWindow,
		policy:       FailOpen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *usageService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func validUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.ErrInvalidUser
	}
	return nil
}

// liveRecord is the single liveness check shared by every read. An expired row
// is removed with a conditional delete that cannot touch a window restarted
// concurrently; a failed cleanup is logged and does not fail the read.
func (s *usageService) liveRecord(ctx context.Context, userID string) (*models.UsageRecord, error) {
	if err := validUserID(userID); err != nil {
		return nil, err
	}

	record, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		s.metrics.RecordStorageFailure("read")
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to read usage record")
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	now := s.now()
	if record.Live(now, s.window) {
		return record, nil
	}

	s.metrics.RecordExpiredWindow()
	if err := s.repo.DeleteExpired(ctx, userID, now.Add(-s.window)); err != nil {
		s.metrics.RecordStorageFailure("delete")
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Warn("Failed to delete expired usage record")
	}
	return nil, nil
}

func (s *usageService) GetRequestCount(ctx context.Context, userID string) (int, error) {
	record, err := s.liveRecord(ctx, userID)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}
	return record.RequestCount, nil
}

func (s *usageService) GetResetTime(ctx context.Context, userID string) (*time.Time, error) {
	record, err := s.liveRecord(ctx, userID)
	if err != nil || record == nil {
		return nil, err
	}
	resetAt := record.ResetAt(s.window)
	return &resetAt, nil
}

// IncrementRequestCount records one completed request. Storage failures are
// logged and swallowed: the request they account for has already been served.
func (s *usageService) IncrementRequestCount(ctx context.Context, userID string) error {
	if err := validUserID(userID); err != nil {
		return err
	}

	err := s.repo.Increment(ctx, userID, s.now(), s.window)
	s.metrics.RecordIncrement(err)
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to increment usage")
	}
	return nil
}

func (s *usageService) GetUsage(ctx context.Context, identity models.Identity) (*UsageStats, error) {
	record, err := s.liveRecord(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	limit := s.entitlements.For(identity.Type).MaxMessagesPerDay
	stats := &UsageStats{MaxMessages: limit}
	if record != nil {
		stats.MessagesUsed = record.RequestCount
		resetAt := record.ResetAt(s.window)
		stats.ResetTime = &resetAt
	}
	stats.MessagesLeft = limit - stats.MessagesUsed
	if stats.MessagesLeft < 0 {
		stats.MessagesLeft = 0
	}
	return stats, nil
}

// CheckAdmission admits a request iff used < limit. It is advisory: admission and
// the later increment are separate calls, so a burst may overshoot the limit.
func (s *usageService) CheckAdmission(ctx context.Context, identity models.Identity) (*Admission, error) {
	userType := string(identity.Type)

	stats, err := s.GetUsage(ctx, identity)
	if errors.Is(err, errors.ErrInvalidUser) {
		return nil, err
	}
	if err != nil {
		if s.policy == FailClosed {
			s.metrics.RecordAdmission(userType, metrics.DecisionDenied)
			return nil, err
		}
		limit := s.entitlements.For(identity.Type).MaxMessagesPerDay
		logger.Logger.WithFields(logrus.Fields{
			"user_id": identity.UserID,
			"error":   err,
		}).Warn("Usage unavailable, admitting request")
		s.metrics.RecordAdmission(userType, metrics.DecisionDegraded)
		return &Admission{
			Allowed:  true,
			Degraded: true,
			Stats:    UsageStats{MaxMessages: limit, MessagesLeft: limit},
		}, nil
	}

	admission := &Admission{
		Allowed: stats.MessagesUsed < stats.MaxMessages,
		Stats:   *stats,
	}
	if admission.Allowed {
		s.metrics.RecordAdmission(userType, metrics.DecisionAllowed)
	} else {
		s.metrics.RecordAdmission(userType, metrics.DecisionDenied)
	}
	return admission, nil
}
