package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	Port            string
	DatabaseURL     string
	JWTSecret       string
	UsageStore      string
	ChatUpstreamURL string
	AllowedOrigins  []string
	LogLevel        string
	LogFile         string

	QuotaWindow   time.Duration
	QuotaFailOpen bool

	Redis        *RedisConfig
	Entitlements *Entitlements
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "5050"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTSecret:       strings.TrimSpace(getEnv("JWT_SECRET", "")),
		UsageStore:      strings.ToLower(getEnv("USAGE_STORE", StorePostgres)),
		ChatUpstreamURL: getEnv("CHAT_UPSTREAM_URL", ""),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         getEnv("LOG_FILE", ""),
		QuotaWindow:     getEnvDuration("QUOTA_WINDOW", 24*time.Hour),
		QuotaFailOpen:   getEnvBool("QUOTA_FAIL_OPEN", true),
		Redis:           NewRedisConfig(),
		Entitlements:    LoadEntitlements(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	switch c.UsageStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required for the %s usage store", StorePostgres)
		}
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown USAGE_STORE %q", c.UsageStore)
	}
	if c.QuotaWindow <= 0 {
		return fmt.Errorf("QUOTA_WINDOW must be positive, got %s", c.QuotaWindow)
	}
	if c.Entitlements != nil {
		for userType, ent := range c.Entitlements.Limits {
			if ent.MaxMessagesPerDay < 0 {
				return fmt.Errorf("ENTITLEMENT_%s must not be negative, got %d",
					strings.ToUpper(string(userType)), ent.MaxMessagesPerDay)
			}
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
