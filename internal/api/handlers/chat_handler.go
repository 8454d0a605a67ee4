package handlers

import (
	"chat-quota-api/internal/logger"
	"chat-quota-api/internal/services"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/sirupsen/logrus"
)

// ChatHandler forwards admitted chat requests to the model upstream.
type ChatHandler struct {
	proxy *httputil.ReverseProxy
}

// NewChatHandler returns a handler proxying to upstreamURL. An empty URL yields
// a handler that answers 503.
func NewChatHandler(upstreamURL string) (*ChatHandler, error) {
	if upstreamURL == "" {
		return &ChatHandler{}, nil
	}
	target, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, err
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Del("Authorization")
			if identity, ok := services.IdentityFromContext(pr.In.Context()); ok {
				pr.Out.Header.Set("X-User-ID", identity.UserID)
				pr.Out.Header.Set("X-User-Type", string(identity.Type))
			}
		},
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Logger.WithFields(logrus.Fields{
				"error": err,
				"path":  r.URL.Path,
			}).Error("Chat upstream failed")
			respondWithJSON(w, http.StatusBadGateway, map[string]string{"error": "chat upstream unavailable"})
		},
	}
	return &ChatHandler{proxy: proxy}, nil
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.proxy == nil {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chat upstream not configured"})
		return
	}
	h.proxy.ServeHTTP(w, r)
}
