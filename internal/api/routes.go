package api

import (
	"chat-quota-api/internal/api/controllers"
	"chat-quota-api/internal/api/handlers"
	"chat-quota-api/internal/middleware"
	"chat-quota-api/internal/services"
	"net/http"

	"github.com/coder/quartz"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Dependencies carries what the router needs. DB and Redis are nil unless the
// matching usage store is in use.
type Dependencies struct {
	Store           string
	DB              *gorm.DB
	Redis           redis.Cmdable
	IdentityService services.IdentityService
	UsageService    services.UsageService
	ChatHandler     http.Handler
	Gatherer        prometheus.Gatherer
	Clock           quartz.Clock
}

func SetupRoutes(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.RecoveryMiddleware)

	authHandler := handlers.NewAuthHandler(deps.IdentityService)
	usageHandler := handlers.NewUsageHandler(deps.UsageService)
	quotaGuard := middleware.NewQuotaGuard(deps.UsageService, deps.Clock)

	// Public routes
	router.HandleFunc("/health", controllers.HealthCheckHandler(deps.Store, deps.DB, deps.Redis)).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/auth/guest", authHandler.GuestLogin).Methods("POST")

	// API routes (protected)
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(middleware.AuthMiddleware(deps.IdentityService))

	apiRouter.HandleFunc("/usage", usageHandler.GetCurrentUsage).Methods("GET")
	apiRouter.Handle("/chat", quotaGuard.Enforce(deps.ChatHandler)).Methods("POST")

	return router
}
