package main

import (
	"chat-quota-api/internal/api"
	"chat-quota-api/internal/api/handlers"
	"chat-quota-api/internal/config"
	"chat-quota-api/internal/database"
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/metrics"
	"chat-quota-api/internal/repository"
	"chat-quota-api/internal/services"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.WithError(err).Fatal("Invalid configuration")
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		logger.Logger.WithError(err).Fatal("Failed to configure logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := api.Dependencies{Store: cfg.UsageStore, Clock: quartz.NewReal()}

	// Initialize usage store
	var usageRepo repository.UsageRepository
	switch cfg.UsageStore {
	case config.StorePostgres:
		db, err := database.InitDB(cfg.DatabaseURL)
		if err != nil {
			logger.Logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer closeDB(db)
		deps.DB = db
		usageRepo = repository.NewUsageRepository(db)
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.RedisPassword,
			DB:       cfg.Redis.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Logger.WithError(err).Warn("Redis not reachable at startup")
		}
		deps.Redis = rdb
		usageRepo = repository.NewRedisUsageRepository(rdb, cfg.Redis.KeyPrefix)
	default:
		logger.Logger.Warn("Using in-memory usage store; counts are lost on restart")
		usageRepo = repository.NewMemoryUsageRepository()
	}

	// Initialize metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewMetrics(reg)
	if err != nil {
		logger.Logger.WithError(err).Fatal("Failed to register metrics")
	}
	deps.Gatherer = reg

	// Initialize services
	policy := services.FailOpen
	if !cfg.QuotaFailOpen {
		policy = services.FailClosed
	}
	deps.UsageService = services.NewUsageService(usageRepo, cfg.Entitlements,
		services.WithClock(deps.Clock),
		services.WithWindow(cfg.QuotaWindow),
		services.WithFailurePolicy(policy),
		services.WithMetrics(m),
	)
	deps.IdentityService = services.NewIdentityService(cfg.JWTSecret)

	chatHandler, err := handlers.NewChatHandler(cfg.ChatUpstreamURL)
	if err != nil {
		logger.Logger.WithError(err).Fatal("Invalid CHAT_UPSTREAM_URL")
	}
	deps.ChatHandler = chatHandler

	router := api.SetupRoutes(deps)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"Retry-After",
			"X-Request-ID",
		},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	})

	// Create server with timeouts. Chat replies stream, so no write timeout.
	srv := &http.Server{
		Handler:           corsMiddleware.Handler(router),
		Addr:              ":" + cfg.Port,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.LogEvent(logrus.InfoLevel, "Server starting", logrus.Fields{
			"port":        cfg.Port,
			"usage_store": cfg.UsageStore,
			"window":      cfg.QuotaWindow.String(),
			"fail_open":   cfg.QuotaFailOpen,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.WithError(err).Error("Graceful shutdown failed")
	}
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
