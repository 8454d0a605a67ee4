package handlers

import (
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/pkg/errors"
	"chat-quota-api/internal/services"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type UsageHandler struct {
	usageService services.UsageService
}

func NewUsageHandler(usageService services.UsageService) *UsageHandler {
	return &UsageHandler{
		usageService: usageService,
	}
}

// GetCurrentUsage godoc
// @Summary Current message usage
// @Description Returns messages used and left in the caller's rolling window
// @Tags usage
// @Produce json
// @Success 200 {object} services.UsageResponse
// @Failure 401 {object} services.UsageResponse
// @Failure 503 {object} services.UsageResponse
// @Router /api/v1/usage [get]
func (h *UsageHandler) GetCurrentUsage(w http.ResponseWriter, r *http.Request) {
	identity, ok := services.IdentityFromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusUnauthorized, services.UsageErrorResponse("unauthorized"))
		return
	}

	stats, err := h.usageService.GetUsage(r.Context(), *identity)
	if errors.Is(err, errors.ErrInvalidUser) {
		respondWithJSON(w, http.StatusUnauthorized, services.UsageErrorResponse("unauthorized"))
		return
	}
	if err != nil {
		logger.Logger.WithFields(logrus.Fields{
			"user_id": identity.UserID,
			"error":   err,
		}).Error("Failed to read usage")
		respondWithJSON(w, http.StatusServiceUnavailable, services.UsageErrorResponse("unable to determine usage"))
		return
	}

	respondWithJSON(w, http.StatusOK, stats.Response())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
