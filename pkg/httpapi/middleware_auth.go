package httpapi

import (
	"context"
	"net/http"

	"github.com/cuemby/warrenflow/pkg/authgate"
	"github.com/cuemby/warrenflow/pkg/types"
)

type contextKey int

const apiKeyContextKey contextKey = iota

// authMiddleware enforces X-API-Key on every route it wraps (health is
// mounted outside this group). Missing key is 401; invalid or
// forbidden is 403 — a write's project is authorized against the
// key's allowed_projects inside each handler, since only the handler
// knows which project the payload names.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get("X-API-Key")
		decision, key := s.Gate.Authorize(secret, "")
		switch decision {
		case authgate.MissingKey:
			writeError(w, http.StatusUnauthorized, "missing_api_key", "X-API-Key header is required")
			return
		case authgate.InvalidKey:
			writeError(w, http.StatusForbidden, "invalid_api_key", "API key is invalid or expired")
			return
		}
		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// apiKeyFromContext returns the validated key attached by authMiddleware.
func apiKeyFromContext(ctx context.Context) *types.ApiKey {
	key, _ := ctx.Value(apiKeyContextKey).(*types.ApiKey)
	return key
}
