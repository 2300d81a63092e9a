package middleware

import (
	"net/http"

	"github.com/hugh/schoolyard/internal/authz"
	"github.com/hugh/schoolyard/internal/database/models"
)

// RequirePermission authorizes the given action against the request's
// resolved tenant before the handler runs. This is the hook downstream CRUD
// routers mount on every protected endpoint.
//
// Denies are returned as a uniform 403 regardless of which check failed;
// the detailed reason stays in the server-side audit trail. Upstream
// failures are a retryable 503, never an implicit allow.
func RequirePermission(evaluator *authz.Evaluator, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			t := GetTenant(r.Context())
			if t.IsPlatform {
				// Platform host requests are admin-only; only the
				// super-admin bypass can allow them, and the evaluator
				// needs a school id for everyone else, so deny here.
				if claims.SchoolID == nil && claims.Role == string(models.PlatformSuperAdmin) {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			decision := evaluator.Authorize(r.Context(), claims, action, t.ID)
			if !decision.Allowed {
				if decision.Retryable() {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "Authorization temporarily unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequirePlatformAdmin restricts a route to platform-scoped super admin
// tokens.
func RequirePlatformAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.SchoolID != nil || claims.Role != string(models.PlatformSuperAdmin) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
