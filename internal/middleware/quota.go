package middleware

import (
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/pkg/errors"
	"chat-quota-api/internal/services"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coder/quartz"
	"github.com/sirupsen/logrus"
)

// QuotaGuard admits chat requests against the caller's daily entitlement and
// counts each one whose response was delivered successfully.
type QuotaGuard struct {
	usage services.UsageService
	clock quartz.Clock
}

func NewQuotaGuard(usage services.UsageService, clock quartz.Clock) *QuotaGuard {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &QuotaGuard{usage: usage, clock: clock}
}

func (q *QuotaGuard) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := services.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		admission, err := q.usage.CheckAdmission(r.Context(), *identity)
		if err != nil {
			status := http.StatusServiceUnavailable
			message := "unable to determine usage"
			if errors.Is(err, errors.ErrInvalidUser) {
				status = http.StatusUnauthorized
				message = "unauthorized"
			}
			writeJSON(w, status, services.UsageErrorResponse(message))
			return
		}

		stats := admission.Stats
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(stats.MaxMessages))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(stats.MessagesLeft))
		if stats.ResetTime != nil {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(stats.ResetTime.Unix(), 10))
		}

		if !admission.Allowed {
			if stats.ResetTime != nil {
				retryAfter := int(stats.ResetTime.Sub(q.clock.Now()).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			body := stats.Response()
			body.Success = false
			body.Error = errors.ErrQuotaExceeded.Error()
			writeJSON(w, http.StatusTooManyRequests, body)
			return
		}

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= http.StatusBadRequest {
			return
		}
		// The response is out; a cancelled request context must not drop the count.
		if err := q.usage.IncrementRequestCount(context.WithoutCancel(r.Context()), identity.UserID); err != nil {
			logger.Logger.WithFields(logrus.Fields{
				"user_id": identity.UserID,
				"error":   err,
			}).Error("Failed to record usage")
		}
	})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
