package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthCheckResponse struct {
	Status   string            `json:"status"`
	Store    string            `json:"store"`
	Backends map[string]string `json:"backends"`
}

const pingTimeout = 2 * time.Second

// HealthCheckHandler reports API health and reachability of the configured usage
// store. Either backend may be nil when the service runs without it.
func HealthCheckHandler(store string, db *gorm.DB, rdb redis.Cmdable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		response := HealthCheckResponse{
			Status:   "API is running",
			Store:    store,
			Backends: make(map[string]string),
		}
		code := http.StatusOK

		if db != nil {
			status := checkDatabase(ctx, db)
			response.Backends["database"] = status
			if status != "healthy" {
				code = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			status := "healthy"
			if err := rdb.Ping(ctx).Err(); err != nil {
				status = "unreachable"
				code = http.StatusServiceUnavailable
			}
			response.Backends["redis"] = status
		}

		respondWithJSON(w, code, response)
	}
}

func checkDatabase(ctx context.Context, db *gorm.DB) string {
	sqlDB, err := db.DB()
	if err != nil {
		return "connection failed"
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "connection failed"
	}
	return "healthy"
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
