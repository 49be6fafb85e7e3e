package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"

	"ems-dispatch-api/internal/model"
	"ems-dispatch-api/internal/service"
	"ems-dispatch-api/pkg/apierror"
)

// SessionDataKey is the key for storing session data in request context.
const SessionDataKey contextKey = "session_data"

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	TokenService *service.TokenService // optional, X-Token disabled when nil
	APIKeys      []string
}

// NewAuthMiddleware creates an authentication middleware with injected
// dependencies. Player sessions authenticate with X-Token; dispatch
// consoles and the game server use X-API-Key.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for monitoring endpoints
			if r.URL.Path == "/api/v1/health" || r.URL.Path == "/api/v1/ready" {
				next.ServeHTTP(w, r)
				return
			}

			// Player connect has no token yet
			if r.URL.Path == "/api/v1/session" && r.Method == http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			// Admin endpoints carry their own X-Login-Key check
			if strings.HasPrefix(r.URL.Path, "/api/v1/admin") {
				loginKey := r.Header.Get("X-Login-Key")
				if loginKey != "" || r.URL.Path == "/api/v1/admin/login" {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Try X-Token first (player sessions)
			token := r.Header.Get("X-Token")
			if token != "" && cfg.TokenService != nil {
				sessionData, err := cfg.TokenService.ValidateToken(r.Context(), token)
				if err != nil {
					writeError(w, apierror.Unauthorized("Invalid or expired session token"))
					return
				}

				// Sliding session: activity extends the TTL
				_ = cfg.TokenService.RefreshToken(r.Context(), token)

				ctx := context.WithValue(r.Context(), SessionDataKey, sessionData)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Fall back to X-API-Key
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-Token or X-API-Key header."))
				return
			}

			validKeys := cfg.APIKeys
			if len(validKeys) == 0 {
				validKeys = getAPIKeysFromEnv()
			}

			if !isValidKey(apiKey, validKeys) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// getAPIKeysFromEnv returns API keys from environment variables.
func getAPIKeysFromEnv() []string {
	keysEnv := os.Getenv("API_KEYS")
	if keysEnv == "" {
		singleKey := os.Getenv("API_KEY")
		if singleKey != "" {
			return []string{singleKey}
		}
		return nil
	}

	keys := strings.Split(keysEnv, ",")
	for i := range keys {
		keys[i] = strings.TrimSpace(keys[i])
	}
	return keys
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if key == valid {
			return true
		}
	}
	return false
}

// GetSessionFromContext retrieves session data from request context.
func GetSessionFromContext(ctx context.Context) *model.SessionData {
	if data, ok := ctx.Value(SessionDataKey).(*model.SessionData); ok {
		return data
	}
	return nil
}
