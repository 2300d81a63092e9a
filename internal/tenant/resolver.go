package tenant

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/hugh/schoolyard/internal/database/models"
	"gorm.io/gorm"
)

// ErrTenantNotFound means the host maps to no registered school. Callers
// must surface it: falling back to a default tenant would be a cross-tenant
// leak.
var ErrTenantNotFound = errors.New("tenant not found for host")

// Tenant is the resolved owner of a request host. IsPlatform marks the
// platform root, which is distinct from every school and admin-only.
type Tenant struct {
	ID               uuid.UUID
	Name             string
	Status           models.Status
	SubscriptionTier string
	FeatureFlags     map[string]bool
	IsPlatform       bool
}

// Resolver maps an inbound host (subdomain or custom domain) to its school.
// Lookups are cached with a bounded TTL keyed by host; domain mutations
// call Invalidate.
type Resolver struct {
	db           *gorm.DB
	platformHost string
	cache        *expirable.LRU[string, Tenant]
	logger       *slog.Logger
}

func NewResolver(db *gorm.DB, platformHost string, ttl time.Duration, size int, logger *slog.Logger) *Resolver {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		db:           db,
		platformHost: strings.ToLower(platformHost),
		cache:        expirable.NewLRU[string, Tenant](size, nil, ttl),
		logger:       logger,
	}
}

// Resolve maps a request host to its tenant. Custom domains take priority
// over platform subdomains since a school may own both; the bare platform
// root resolves to the platform sentinel.
func (r *Resolver) Resolve(ctx context.Context, host string) (Tenant, error) {
	host = NormalizeHost(host)
	if host == "" {
		return Tenant{}, ErrTenantNotFound
	}

	if host == r.platformHost {
		return Tenant{IsPlatform: true}, nil
	}

	if t, ok := r.cache.Get(host); ok {
		return t, nil
	}

	var school models.School
	err := r.db.WithContext(ctx).Where("custom_domain = ?", host).First(&school).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if sub, ok := r.subdomainOf(host); ok {
			err = r.db.WithContext(ctx).Where("subdomain = ?", sub).First(&school).Error
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}

	t := Tenant{
		ID:               school.ID,
		Name:             school.Name,
		Status:           school.Status,
		SubscriptionTier: school.SubscriptionTier,
		FeatureFlags:     map[string]bool(school.FeatureFlags),
	}
	r.cache.Add(host, t)
	return t, nil
}

// Invalidate evicts hosts after a domain is added, removed, or verified.
func (r *Resolver) Invalidate(hosts ...string) {
	for _, h := range hosts {
		r.cache.Remove(NormalizeHost(h))
	}
}

func (r *Resolver) subdomainOf(host string) (string, bool) {
	suffix := "." + r.platformHost
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	sub := strings.TrimSuffix(host, suffix)
	// Nested subdomains are not tenant hosts.
	if sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	return sub, true
}

// NormalizeHost lowercases a request host and strips any port.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
