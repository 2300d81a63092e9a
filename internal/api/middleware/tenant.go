package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hugh/schoolyard/internal/tenant"
)

const TenantKey contextKey = "tenant"

// Tenant resolves the request host to its school and injects the result.
// An unknown host is a hard 404; there is no fallback tenant.
func Tenant(resolver *tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, err := resolver.Resolve(r.Context(), r.Host)
			if err != nil {
				if errors.Is(err, tenant.ErrTenantNotFound) {
					writeTenantError(w, http.StatusNotFound, "Unknown tenant")
					return
				}
				writeTenantError(w, http.StatusServiceUnavailable, "Tenant resolution unavailable")
				return
			}

			ctx := context.WithValue(r.Context(), TenantKey, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenant returns the resolved tenant; the zero Tenant outside the
// middleware.
func GetTenant(ctx context.Context) tenant.Tenant {
	if t, ok := ctx.Value(TenantKey).(tenant.Tenant); ok {
		return t
	}
	return tenant.Tenant{}
}

func writeTenantError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
