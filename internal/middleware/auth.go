package middleware

import (
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/services"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

func AuthMiddleware(identityService services.IdentityService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := extractTokenFromHeader(r)
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			identity, err := identityService.VerifyToken(tokenString)
			if err != nil {
				logger.Logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Debug("Rejected token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := services.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractTokenFromHeader(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
