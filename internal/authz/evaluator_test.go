package authz_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/auth"
	"github.com/hugh/schoolyard/internal/authz"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubContexts serves canned AuthContexts keyed by (user, school).
type stubContexts struct {
	contexts map[string]*identity.AuthContext
	err      error
	// lastMinVersion records the freshness floor the evaluator asked for.
	lastMinVersion int64
}

func (s *stubContexts) GetContextAtLeast(_ context.Context, userID, schoolID uuid.UUID, minVersion int64) (*identity.AuthContext, error) {
	s.lastMinVersion = minVersion
	if s.err != nil {
		return nil, s.err
	}
	actx, ok := s.contexts[userID.String()+"/"+schoolID.String()]
	if !ok {
		return nil, identity.ErrMembershipNotFound
	}
	return actx, nil
}

func newStub() *stubContexts {
	return &stubContexts{contexts: make(map[string]*identity.AuthContext)}
}

func (s *stubContexts) add(actx *identity.AuthContext) {
	s.contexts[actx.UserID.String()+"/"+actx.SchoolID.String()] = actx
}

func newTestEvaluator(stub *stubContexts) *authz.Evaluator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return authz.NewEvaluator(stub, authz.NewAuditor(nil, logger))
}

func schoolClaims(userID, schoolID uuid.UUID, role string, version int64) *auth.Claims {
	return &auth.Claims{
		UserID:            userID,
		SchoolID:          &schoolID,
		Role:              role,
		PermissionVersion: version,
		Email:             "test@example.com",
	}
}

func TestEvaluator_RoleDefaults(t *testing.T) {
	userID := uuid.New()
	schoolID := uuid.New()

	stub := newStub()
	stub.add(&identity.AuthContext{
		UserID:            userID,
		SchoolID:          schoolID,
		Role:              models.RoleTeacher,
		Status:            models.StatusActive,
		SchoolStatus:      models.StatusActive,
		PermissionVersion: 1,
	})
	eval := newTestEvaluator(stub)
	claims := schoolClaims(userID, schoolID, "teacher", 1)

	t.Run("teacher reads gradebook", func(t *testing.T) {
		d := eval.Authorize(context.Background(), claims, authz.ActionGradebookRead, schoolID)
		assert.True(t, d.Allowed)
	})

	t.Run("teacher writes attendance", func(t *testing.T) {
		d := eval.Authorize(context.Background(), claims, authz.ActionAttendanceWrite, schoolID)
		assert.True(t, d.Allowed)
	})

	t.Run("teacher cannot read finance", func(t *testing.T) {
		d := eval.Authorize(context.Background(), claims, authz.ActionFinanceRead, schoolID)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyInsufficientPermission, d.Reason)
		assert.False(t, d.Retryable())
	})
}

func TestEvaluator_ExplicitPermissions(t *testing.T) {
	userID := uuid.New()
	schoolID := uuid.New()

	t.Run("explicit grant beats missing role default", func(t *testing.T) {
		stub := newStub()
		stub.add(&identity.AuthContext{
			UserID:       userID,
			SchoolID:     schoolID,
			Role:         models.RoleTeacher,
			Permissions:  []string{authz.ActionFinanceRead},
			Status:       models.StatusActive,
			SchoolStatus: models.StatusActive,
		})
		eval := newTestEvaluator(stub)

		d := eval.Authorize(context.Background(), schoolClaims(userID, schoolID, "teacher", 1), authz.ActionFinanceRead, schoolID)
		assert.True(t, d.Allowed)
	})

	t.Run("wildcard grants everything", func(t *testing.T) {
		stub := newStub()
		stub.add(&identity.AuthContext{
			UserID:       userID,
			SchoolID:     schoolID,
			Role:         models.RolePrincipal,
			Permissions:  []string{models.PermissionWildcard},
			Status:       models.StatusActive,
			SchoolStatus: models.StatusActive,
		})
		eval := newTestEvaluator(stub)

		for _, action := range []string{authz.ActionFinanceWrite, authz.ActionSettingsManage, authz.ActionStudentsWrite} {
			d := eval.Authorize(context.Background(), schoolClaims(userID, schoolID, "principal", 1), action, schoolID)
			assert.True(t, d.Allowed, action)
		}
	})
}

func TestEvaluator_TenantIsolation(t *testing.T) {
	userID := uuid.New()
	schoolA := uuid.New()
	schoolB := uuid.New()

	stub := newStub()
	// The user is a live member of both schools; isolation is about the
	// token's scope, not about membership.
	stub.add(&identity.AuthContext{
		UserID: userID, SchoolID: schoolA, Role: models.RoleTeacher,
		Status: models.StatusActive, SchoolStatus: models.StatusActive,
	})
	stub.add(&identity.AuthContext{
		UserID: userID, SchoolID: schoolB, Role: models.RoleParent,
		Status: models.StatusActive, SchoolStatus: models.StatusActive,
	})
	eval := newTestEvaluator(stub)

	t.Run("token scoped to A denies action on B", func(t *testing.T) {
		claims := schoolClaims(userID, schoolA, "teacher", 1)

		d := eval.Authorize(context.Background(), claims, authz.ActionAnnouncementsRead, schoolB)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyWrongTenant, d.Reason)
	})

	t.Run("after switching, B-scoped token acts as parent", func(t *testing.T) {
		claims := schoolClaims(userID, schoolB, "parent", 1)

		d := eval.Authorize(context.Background(), claims, authz.ActionGradebookRead, schoolB)
		assert.True(t, d.Allowed)

		// Parent defaults do not include attendance writes.
		d = eval.Authorize(context.Background(), claims, authz.ActionAttendanceWrite, schoolB)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyInsufficientPermission, d.Reason)
	})

	t.Run("token with no active school denies school actions", func(t *testing.T) {
		claims := &auth.Claims{UserID: userID, Role: "teacher"}

		d := eval.Authorize(context.Background(), claims, authz.ActionGradebookRead, schoolA)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyWrongTenant, d.Reason)
	})
}

func TestEvaluator_SuperAdminBypass(t *testing.T) {
	adminID := uuid.New()
	schoolID := uuid.New()

	stub := newStub()
	eval := newTestEvaluator(stub)

	t.Run("platform-scoped super admin passes without membership", func(t *testing.T) {
		claims := &auth.Claims{UserID: adminID, Role: string(models.PlatformSuperAdmin)}

		d := eval.Authorize(context.Background(), claims, authz.ActionSettingsManage, schoolID)
		assert.True(t, d.Allowed)
	})

	t.Run("school-scoped token never bypasses, even for super admins", func(t *testing.T) {
		// A super admin acting inside a school is bound by that
		// membership's role like anyone else.
		otherSchool := uuid.New()
		claims := schoolClaims(adminID, otherSchool, string(models.PlatformSuperAdmin), 1)

		d := eval.Authorize(context.Background(), claims, authz.ActionSettingsManage, schoolID)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyWrongTenant, d.Reason)
	})

	t.Run("platform-scoped non-admin does not bypass", func(t *testing.T) {
		claims := &auth.Claims{UserID: uuid.New(), Role: string(models.PlatformStaff)}

		d := eval.Authorize(context.Background(), claims, authz.ActionStudentsRead, schoolID)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyWrongTenant, d.Reason)
	})
}

func TestEvaluator_MembershipStatus(t *testing.T) {
	userID := uuid.New()
	schoolID := uuid.New()

	t.Run("suspended membership denies mid-session", func(t *testing.T) {
		stub := newStub()
		stub.add(&identity.AuthContext{
			UserID: userID, SchoolID: schoolID, Role: models.RoleTeacher,
			Status: models.StatusSuspended, SchoolStatus: models.StatusActive,
		})
		eval := newTestEvaluator(stub)

		// The token is still valid; the live status wins.
		d := eval.Authorize(context.Background(), schoolClaims(userID, schoolID, "teacher", 1), authz.ActionGradebookRead, schoolID)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyMembershipInactive, d.Reason)
	})

	t.Run("suspended school denies all members", func(t *testing.T) {
		stub := newStub()
		stub.add(&identity.AuthContext{
			UserID: userID, SchoolID: schoolID, Role: models.RolePrincipal,
			Permissions: []string{models.PermissionWildcard},
			Status:      models.StatusActive, SchoolStatus: models.StatusSuspended,
		})
		eval := newTestEvaluator(stub)

		d := eval.Authorize(context.Background(), schoolClaims(userID, schoolID, "principal", 1), authz.ActionStudentsRead, schoolID)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyMembershipInactive, d.Reason)
	})

	t.Run("missing membership denies", func(t *testing.T) {
		eval := newTestEvaluator(newStub())

		d := eval.Authorize(context.Background(), schoolClaims(userID, schoolID, "teacher", 1), authz.ActionGradebookRead, schoolID)
		assert.False(t, d.Allowed)
		assert.Equal(t, authz.DenyMembershipInactive, d.Reason)
	})
}

func TestEvaluator_FailClosed(t *testing.T) {
	userID := uuid.New()
	schoolID := uuid.New()

	stub := newStub()
	stub.err = errors.New("connection refused")
	eval := newTestEvaluator(stub)

	d := eval.Authorize(context.Background(), schoolClaims(userID, schoolID, "teacher", 1), authz.ActionGradebookRead, schoolID)
	require.False(t, d.Allowed)
	assert.Equal(t, authz.DenyUpstreamUnavailable, d.Reason)
	assert.True(t, d.Retryable())
}

func TestEvaluator_PermissionVersionFloor(t *testing.T) {
	userID := uuid.New()
	schoolID := uuid.New()

	stub := newStub()
	stub.add(&identity.AuthContext{
		UserID: userID, SchoolID: schoolID, Role: models.RoleTeacher,
		Status: models.StatusActive, SchoolStatus: models.StatusActive,
		PermissionVersion: 4,
	})
	eval := newTestEvaluator(stub)

	// The token's version is passed through as the freshness floor, so a
	// cache may never serve an entry older than what the token proves.
	eval.Authorize(context.Background(), schoolClaims(userID, schoolID, "teacher", 4), authz.ActionGradebookRead, schoolID)
	assert.Equal(t, int64(4), stub.lastMinVersion)
}
