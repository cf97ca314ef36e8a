package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/robalyx/warden/internal/rest/middleware/ip"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Middleware requires a configured API key in the Authorization header.
// With no keys configured every request is rejected.
type Middleware struct {
	keys   [][]byte
	logger *zap.Logger
}

// New creates an API key middleware.
func New(keys []string, logger *zap.Logger) *Middleware {
	m := &Middleware{logger: logger}
	for _, key := range keys {
		if key = strings.TrimSpace(key); key != "" {
			m.keys = append(m.keys, []byte(key))
		}
	}
	return m
}

// AsRESTMiddleware returns a bunrouter middleware handler for API key checks.
func (m *Middleware) AsRESTMiddleware(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if !m.valid(req.Header.Get("Authorization")) {
			m.logger.Debug("Rejected request without valid API key",
				zap.String("ip", ip.FromContext(req.Context())),
				zap.String("path", req.URL.Path))

			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return nil
		}

		return next(w, req)
	}
}

func (m *Middleware) valid(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}

	for _, key := range m.keys {
		if subtle.ConstantTimeCompare([]byte(token), key) == 1 {
			return true
		}
	}
	return false
}
