package middleware

import (
	"context"
	"net/http"
	"strings"

	"astapp/internal/service"
)

type contextKey string

const CreatorIDKey contextKey = "creatorId"

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authSvc *service.AuthService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(authSvc *service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authSvc: authSvc}
}

// RequireCreator validates the creator JWT from the Authorization header
func (m *AuthMiddleware) RequireCreator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractBearerToken(r)
		if token == "" {
			writeUnauthorized(w, "missing authorization header")
			return
		}

		claims, err := m.authSvc.ValidateCreatorToken(token)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), CreatorIDKey, claims.CreatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCreatorID extracts creator ID from context
func GetCreatorID(ctx context.Context) string {
	if v, ok := ctx.Value(CreatorIDKey).(string); ok {
		return v
	}
	return ""
}

// ExtractBearerToken returns the token of an "Authorization: Bearer" header
func ExtractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
