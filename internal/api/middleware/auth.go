package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/auth"
)

type contextKey string

const (
	ClaimsKey         contextKey = "claims"
	UserIDKey         contextKey = "user_id"
	ActiveSchoolIDKey contextKey = "active_school_id"
	ActiveRoleKey     contextKey = "active_role"
)

// Auth validates the bearer token and injects the decoded claims, the
// request's explicit tenant context, into the request context.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			}

			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, ActiveSchoolIDKey, claims.SchoolID)
			ctx = context.WithValue(ctx, ActiveRoleKey, claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims returns the decoded token claims, or nil outside Auth.
func GetClaims(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(ClaimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// GetActiveSchoolID returns the token's active school, nil for
// platform-scoped tokens.
func GetActiveSchoolID(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(ActiveSchoolIDKey).(*uuid.UUID); ok {
		return id
	}
	return nil
}

func GetActiveRole(ctx context.Context) string {
	if role, ok := ctx.Value(ActiveRoleKey).(string); ok {
		return role
	}
	return ""
}
