package authz

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/auth"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/internal/identity"
)

// DenyReason says which check failed. It is logged server-side only;
// clients get a uniform forbidden response so tenant structure never leaks.
type DenyReason string

const (
	DenyWrongTenant            DenyReason = "wrong_tenant"
	DenyMembershipInactive     DenyReason = "membership_inactive"
	DenyInsufficientPermission DenyReason = "insufficient_permission"
	DenyUpstreamUnavailable    DenyReason = "upstream_unavailable"
)

// Decision is the evaluator's verdict.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision                 { return Decision{Allowed: true} }
func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Retryable reports whether the caller may retry: only upstream failures
// are transient, every other deny is a decision.
func (d Decision) Retryable() bool {
	return !d.Allowed && d.Reason == DenyUpstreamUnavailable
}

// ContextSource supplies the live authorization context for a (user,
// school) pair; the context cache implements it.
type ContextSource interface {
	GetContextAtLeast(ctx context.Context, userID, schoolID uuid.UUID, minVersion int64) (*identity.AuthContext, error)
}

// Evaluator decides allow/deny for one action against one school, in fixed
// order: platform bypass, tenant match, live membership status, explicit
// permissions, role defaults. First match wins; any upstream failure denies.
type Evaluator struct {
	contexts ContextSource
	audit    *Auditor
}

func NewEvaluator(contexts ContextSource, audit *Auditor) *Evaluator {
	return &Evaluator{contexts: contexts, audit: audit}
}

// Authorize evaluates the token's claims against the requested action on
// resourceSchoolID.
func (e *Evaluator) Authorize(ctx context.Context, claims *auth.Claims, action string, resourceSchoolID uuid.UUID) Decision {
	// Platform super admins bypass per-school checks, but only on an
	// explicitly platform-scoped token (no active school). The bypass is
	// always audited.
	if claims.SchoolID == nil && claims.Role == string(models.PlatformSuperAdmin) {
		e.audit.RecordAllow(ctx, claims.UserID, &resourceSchoolID, action, "platform_super_admin")
		return allow()
	}

	// A token scoped to school A never authorizes an action against
	// school B, membership or not; the caller must switch first.
	if claims.SchoolID == nil || *claims.SchoolID != resourceSchoolID {
		e.audit.RecordDeny(ctx, claims.UserID, &resourceSchoolID, action, DenyWrongTenant)
		return deny(DenyWrongTenant)
	}

	// Live membership lookup, read through the cache. The token's
	// permission_version is the freshness floor: a stale cached entry is
	// re-derived rather than trusted. A lookup failure denies.
	actx, err := e.contexts.GetContextAtLeast(ctx, claims.UserID, resourceSchoolID, claims.PermissionVersion)
	if err != nil {
		if err == identity.ErrMembershipNotFound {
			e.audit.RecordDeny(ctx, claims.UserID, &resourceSchoolID, action, DenyMembershipInactive)
			return deny(DenyMembershipInactive)
		}
		e.audit.RecordDeny(ctx, claims.UserID, &resourceSchoolID, action, DenyUpstreamUnavailable)
		return deny(DenyUpstreamUnavailable)
	}

	if actx.Status != models.StatusActive || actx.SchoolStatus != models.StatusActive {
		e.audit.RecordDeny(ctx, claims.UserID, &resourceSchoolID, action, DenyMembershipInactive)
		return deny(DenyMembershipInactive)
	}

	allowed := containsAction(actx.Permissions, action) ||
		roleDefaultContains(actx.Role, action)

	if !allowed {
		e.audit.RecordDeny(ctx, claims.UserID, &resourceSchoolID, action, DenyInsufficientPermission)
		return deny(DenyInsufficientPermission)
	}

	if isSensitiveAction(action) {
		e.audit.RecordAllow(ctx, claims.UserID, &resourceSchoolID, action, "sensitive_action")
	}
	return allow()
}

func containsAction(permissions []string, action string) bool {
	for _, p := range permissions {
		if p == models.PermissionWildcard || p == action {
			return true
		}
	}
	return false
}

func isSensitiveAction(action string) bool {
	for _, prefix := range sensitiveActionPrefixes {
		if strings.HasPrefix(action, prefix) {
			return true
		}
	}
	return false
}
