package handlers

import (
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/models"
	"chat-quota-api/internal/services"
	"net/http"

	"github.com/sirupsen/logrus"
)

// AuthHandler issues identities for callers without an account
type AuthHandler struct {
	identityService services.IdentityService
}

func NewAuthHandler(identityService services.IdentityService) *AuthHandler {
	return &AuthHandler{
		identityService: identityService,
	}
}

// authResponse represents the structure of an authentication response
type authResponse struct {
	Token    string          `json:"token,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	UserType models.UserType `json:"userType,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// GuestLogin godoc
// @Summary Start a guest session
// @Description Issues a fresh guest identity and a bearer token for it
// @Tags auth
// @Produce json
// @Success 201 {object} authResponse
// @Failure 500 {object} authResponse
// @Router /auth/guest [post]
func (h *AuthHandler) GuestLogin(w http.ResponseWriter, r *http.Request) {
	token, identity, err := h.identityService.IssueGuestToken()
	if err != nil {
		logger.Logger.WithError(err).Error("Failed to issue guest token")
		respondWithJSON(w, http.StatusInternalServerError, authResponse{Error: "failed to issue token"})
		return
	}

	logger.LogEvent(logrus.InfoLevel, "Guest identity issued", logrus.Fields{
		"user_id": identity.UserID,
	})
	respondWithJSON(w, http.StatusCreated, authResponse{
		Token:    token,
		UserID:   identity.UserID,
		UserType: identity.Type,
	})
}
