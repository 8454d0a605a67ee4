package middleware

import (
	"chat-quota-api/internal/config"
	"chat-quota-api/internal/models"
	"chat-quota-api/internal/pkg/errors"
	"chat-quota-api/internal/repository"
	"chat-quota-api/internal/services"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

type guardFixture struct {
	guard *QuotaGuard
	usage services.UsageService
	clock *quartz.Mock
	calls int
}

func newGuardFixture(t *testing.T, opts ...services.UsageOption) *guardFixture {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(t0)
	usage := services.NewUsageService(repository.NewMemoryUsageRepository(), config.NewEntitlements(),
		append([]services.UsageOption{services.WithClock(clock)}, opts...)...)
	return &guardFixture{guard: NewQuotaGuard(usage, clock), usage: usage, clock: clock}
}

func (f *guardFixture) serve(identity *models.Identity, status int) *httptest.ResponseRecorder {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls++
		w.WriteHeader(status)
		fmt.Fprint(w, "reply")
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	if identity != nil {
		req = req.WithContext(services.WithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	f.guard.Enforce(next).ServeHTTP(rec, req)
	return rec
}

func TestQuotaGuardRequiresIdentity(t *testing.T) {
	f := newGuardFixture(t)
	rec := f.serve(nil, http.StatusOK)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.calls)
}

func TestQuotaGuardCountsSuccessfulRequests(t *testing.T) {
	f := newGuardFixture(t)
	guest := &models.Identity{UserID: "guest-1", Type: models.GuestUser}

	rec := f.serve(guest, http.StatusOK)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Remaining"))

	count, err := f.usage.GetRequestCount(context.Background(), "guest-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rec = f.serve(guest, http.StatusOK)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, fmt.Sprint(t0.Add(24*time.Hour).Unix()), rec.Header().Get("X-RateLimit-Reset"))
}

func TestQuotaGuardSkipsFailedResponses(t *testing.T) {
	f := newGuardFixture(t)
	guest := &models.Identity{UserID: "guest-1", Type: models.GuestUser}

	rec := f.serve(guest, http.StatusBadGateway)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	count, err := f.usage.GetRequestCount(context.Background(), "guest-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestQuotaGuardRejectsExhaustedUser(t *testing.T) {
	f := newGuardFixture(t)
	guest := &models.Identity{UserID: "guest-1", Type: models.GuestUser}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, f.serve(guest, http.StatusOK).Code)
	}
	f.clock.Advance(time.Hour)

	rec := f.serve(guest, http.StatusOK)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 5, f.calls)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, fmt.Sprint(int((23 * time.Hour).Seconds())), rec.Header().Get("Retry-After"))

	var body services.UsageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, errors.ErrQuotaExceeded.Error(), body.Error)
	require.NotNil(t, body.MessagesLeft)
	assert.Zero(t, *body.MessagesLeft)

	f.clock.Advance(23 * time.Hour)
	assert.Equal(t, http.StatusOK, f.serve(guest, http.StatusOK).Code)
}

type brokenUsage struct {
	services.UsageService
	err error
}

func (b brokenUsage) CheckAdmission(context.Context, models.Identity) (*services.Admission, error) {
	return nil, b.err
}

func TestQuotaGuardAdmissionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"storage down", errors.Unavailable(fmt.Errorf("dial tcp"), "failed to get usage record"), http.StatusServiceUnavailable},
		{"invalid user", errors.ErrInvalidUser, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewQuotaGuard(brokenUsage{err: tt.err}, nil)
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
			req = req.WithContext(services.WithIdentity(req.Context(), &models.Identity{UserID: "u", Type: models.RegularUser}))
			rec := httptest.NewRecorder()
			guard.Enforce(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, called)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}
