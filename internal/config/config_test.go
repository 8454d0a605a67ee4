package config

import (
	"chat-quota-api/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USAGE_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5050", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.UsageStore)
	assert.Equal(t, 24*time.Hour, cfg.QuotaWindow)
	assert.True(t, cfg.QuotaFailOpen)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USAGE_STORE", "Redis")
	t.Setenv("QUOTA_WINDOW", "1h")
	t.Setenv("QUOTA_FAIL_OPEN", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.UsageStore)
	assert.Equal(t, time.Hour, cfg.QuotaWindow)
	assert.False(t, cfg.QuotaFailOpen)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.Redis.RedisDB)
}

func TestLoadRequiresSecretAndDatabase(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USAGE_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	_, err = Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("USAGE_STORE", "cassandra")
	_, err = Load()
	assert.ErrorContains(t, err, "unknown USAGE_STORE")
}

func TestEntitlements(t *testing.T) {
	t.Setenv("ENTITLEMENT_PRO", "750")

	e := LoadEntitlements()
	assert.Equal(t, 5, e.For(models.GuestUser).MaxMessagesPerDay)
	assert.Equal(t, 50, e.For(models.RegularUser).MaxMessagesPerDay)
	assert.Equal(t, 750, e.For(models.ProUser).MaxMessagesPerDay)
	assert.Equal(t, 10000, e.For(models.AdminUser).MaxMessagesPerDay)
	assert.Equal(t, 5, e.For(models.UserType("unknown")).MaxMessagesPerDay)
}

func TestLoadRejectsNegativeEntitlement(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USAGE_STORE", "memory")
	t.Setenv("ENTITLEMENT_PRO", "-1")

	_, err := Load()
	assert.ErrorContains(t, err, "ENTITLEMENT_PRO")

	t.Setenv("ENTITLEMENT_PRO", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Entitlements.For(models.ProUser).MaxMessagesPerDay)
}
