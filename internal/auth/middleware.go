package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/kidconnect/broadcast/internal/metrics"
)

type contextKey string

const (
	usernameKey contextKey = "username"
	roleKey     contextKey = "role"
)

// UserFromContext retrieves the authenticated username from the request
// context. Returns an empty string if no user is set.
func UserFromContext(ctx context.Context) string {
	if u, ok := ctx.Value(usernameKey).(string); ok {
		return u
	}
	return ""
}

// RoleFromContext retrieves the operator role from the request context.
// Returns an empty string if no role is set.
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}

// JWTAuth returns an HTTP middleware that validates Bearer session tokens.
// On success, the username and role are stored in the request context.
func JWTAuth(svc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				metrics.APIAuthFailuresTotal.Inc()
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			claims, err := svc.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				metrics.APIAuthFailuresTotal.Inc()
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns an HTTP middleware that checks the operator's role
// from context against the list of allowed roles. Returns 403 Forbidden if
// the role is not authorized. Must be used after JWTAuth.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[string(r)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if _, ok := allowed[role]; !ok {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
