package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/attendance/internal/apperr"
	"github.com/kozaktomas/attendance/internal/auth"
)

type contextKey string

const principalContextKey contextKey = "principal"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (auth.Principal, error)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAuth is middleware that requires a valid bearer token
func RequireAuth(tokens TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSONError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			principal, err := tokens.Validate(token)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid access token", "client_ip", ClientIP(r))
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeJSONError(w, http.StatusUnauthorized, apperr.ErrInvalidToken.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(SetPrincipalInContext(r.Context(), principal)))
		})
	}
}

// RequireRole rejects authenticated callers of another role with 403.
// It must run after RequireAuth.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipalFromContext(r.Context())
			if !ok || p.Role != role {
				writeJSONError(w, http.StatusForbidden, apperr.ErrWrongRole.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipalFromContext retrieves the authenticated principal from the request context
func GetPrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(auth.Principal)
	return p, ok
}

// SetPrincipalInContext adds a principal to the context.
// This is primarily for testing - use RequireAuth middleware in production.
func SetPrincipalInContext(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
