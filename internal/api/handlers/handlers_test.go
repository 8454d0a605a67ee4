package handlers

import (
	"chat-quota-api/internal/config"
	"chat-quota-api/internal/models"
	"chat-quota-api/internal/pkg/errors"
	"chat-quota-api/internal/repository"
	"chat-quota-api/internal/services"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

func withIdentity(r *http.Request, userID string, userType models.UserType) *http.Request {
	return r.WithContext(services.WithIdentity(r.Context(), &models.Identity{UserID: userID, Type: userType}))
}

func decodeUsage(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestGetCurrentUsage(t *testing.T) {
	clock := quartz.NewMock(t)
	clock.Set(t0)
	usage := services.NewUsageService(repository.NewMemoryUsageRepository(), config.NewEntitlements(), services.WithClock(clock))
	handler := NewUsageHandler(usage)

	t.Run("fresh user", func(t *testing.T) {
		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil), "guest-1", models.GuestUser)
		rec := httptest.NewRecorder()
		handler.GetCurrentUsage(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeUsage(t, rec)
		assert.Equal(t, true, body["success"])
		assert.EqualValues(t, 5, body["messagesLeft"])
		assert.EqualValues(t, 0, body["messagesUsed"])
		assert.EqualValues(t, 5, body["maxMessages"])
		assert.Contains(t, body, "resetTime")
		assert.Nil(t, body["resetTime"])
	})

	t.Run("after two messages", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, usage.IncrementRequestCount(ctx, "user-2"))
		require.NoError(t, usage.IncrementRequestCount(ctx, "user-2"))

		req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil), "user-2", models.RegularUser)
		rec := httptest.NewRecorder()
		handler.GetCurrentUsage(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeUsage(t, rec)
		assert.EqualValues(t, 48, body["messagesLeft"])
		assert.EqualValues(t, 2, body["messagesUsed"])
		assert.EqualValues(t, 50, body["maxMessages"])
		assert.Equal(t, t0.Add(24*time.Hour).Format(time.RFC3339), body["resetTime"])
	})

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.GetCurrentUsage(rec, httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type unavailableUsage struct {
	services.UsageService
}

func (unavailableUsage) GetUsage(context.Context, models.Identity) (*services.UsageStats, error) {
	return nil, errors.Unavailable(fmt.Errorf("connection refused"), "failed to get usage record")
}

func TestGetCurrentUsageStorageDown(t *testing.T) {
	handler := NewUsageHandler(unavailableUsage{})
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil), "u", models.RegularUser)
	rec := httptest.NewRecorder()
	handler.GetCurrentUsage(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeUsage(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "unable to determine usage", body["error"])
	assert.NotContains(t, body, "messagesLeft")
	assert.Contains(t, body, "resetTime")
}

func TestGuestLogin(t *testing.T) {
	identities := services.NewIdentityService("secret")
	handler := NewAuthHandler(identities)

	rec := httptest.NewRecorder()
	handler.GuestLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/guest", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp authResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.GuestUser, resp.UserType)

	identity, err := identities.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.UserID, identity.UserID)
}

func TestChatHandlerProxiesToUpstream(t *testing.T) {
	var gotUser, gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User-ID")
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "echo:%s", body)
	}))
	defer upstream.Close()

	handler, err := NewChatHandler(upstream.URL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	req.Header.Set("Authorization", "Bearer token")
	req = withIdentity(req, "user-9", models.ProUser)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo:", rec.Body.String())
	assert.Equal(t, "user-9", gotUser)
	assert.Empty(t, gotAuth)
}

func TestChatHandlerWithoutUpstream(t *testing.T) {
	handler, err := NewChatHandler("")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatHandlerUpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	handler, err := NewChatHandler(addr)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
