package handlers_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/schoolyard/internal/api/dto"
	"github.com/hugh/schoolyard/internal/api/handlers"
	"github.com/hugh/schoolyard/internal/api/middleware"
	"github.com/hugh/schoolyard/internal/authz"
	"github.com/hugh/schoolyard/internal/ctxcache"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/internal/identity"
	"github.com/hugh/schoolyard/internal/tenant"
	"github.com/hugh/schoolyard/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlatformHost = "schoolyard.test"

type schoolTestEnv struct {
	tc       *testutil.TestSetup
	store    *identity.Store
	resolver *tenant.Resolver
	router   *chi.Mux
}

func setupSchoolTestRouter(t *testing.T) *schoolTestEnv {
	tc := testutil.NewTestContext(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := identity.NewStore(tc.DB, testutil.CreateTestEncryptor(t), logger)

	// Local-only cache; redis is optional.
	cache := ctxcache.New(ctxcache.Options{
		Loader:   store,
		LocalTTL: time.Second,
		Logger:   logger,
	})
	store.SetInvalidator(cache)
	t.Cleanup(func() { cache.Close() })

	resolver := tenant.NewResolver(tc.DB, testPlatformHost, time.Minute, 128, logger)
	evaluator := authz.NewEvaluator(cache, authz.NewAuditor(nil, logger))
	handler := handlers.NewSchoolHandler(store, resolver, evaluator, testPlatformHost)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Route("/api/v1/schools", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePlatformAdmin())
				r.Post("/", handler.Create)
				r.Put("/{schoolID}/domains", handler.UpdateDomains)
				r.Put("/{schoolID}/plan", handler.UpdatePlan)
			})
			r.Route("/{schoolID}/members", func(r chi.Router) {
				r.Post("/", handler.InviteMember)
				r.Put("/{userID}", handler.UpdateMember)
				r.Delete("/{userID}", handler.ArchiveMember)
			})
		})
	})

	return &schoolTestEnv{tc: tc, store: store, resolver: resolver, router: r}
}

func (e *schoolTestEnv) platformAdminToken(t *testing.T) string {
	t.Helper()
	admin := testutil.CreateTestUser(t, e.tc.DB)
	require.NoError(t, e.tc.DB.Model(admin).Update("platform_role", models.PlatformSuperAdmin).Error)
	admin.PlatformRole = models.PlatformSuperAdmin
	return testutil.GenerateTestPlatformToken(t, e.tc.JWTService, admin)
}

func TestSchoolHandler_Create(t *testing.T) {
	env := setupSchoolTestRouter(t)
	defer env.tc.Cleanup()

	adminToken := env.platformAdminToken(t)

	t.Run("platform admin registers a school", func(t *testing.T) {
		body := map[string]interface{}{
			"name":      "Lakeside College",
			"subdomain": "lakeside",
		}
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/schools/", body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.SchoolDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "Lakeside College", resp.Name)
		assert.Equal(t, "lakeside", resp.Subdomain)
		assert.Equal(t, "active", resp.Status)
		assert.Equal(t, "free", resp.SubscriptionTier)
	})

	t.Run("duplicate subdomain conflicts", func(t *testing.T) {
		body := map[string]interface{}{"name": "Copycat", "subdomain": "lakeside"}
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/schools/", body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("invalid subdomain", func(t *testing.T) {
		body := map[string]interface{}{"name": "Bad", "subdomain": "has.dots"}
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/schools/", body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("school-scoped token is not a platform admin", func(t *testing.T) {
		body := map[string]interface{}{"name": "Nope", "subdomain": "nope"}
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/schools/", body, env.tc.Token)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestSchoolHandler_UpdateDomains(t *testing.T) {
	env := setupSchoolTestRouter(t)
	defer env.tc.Cleanup()

	adminToken := env.platformAdminToken(t)
	ctx := testutil.TestContext(t)

	// Warm the resolver cache so the update has something to evict.
	host := env.tc.School.Subdomain + "." + testPlatformHost
	_, err := env.resolver.Resolve(ctx, host)
	require.NoError(t, err)

	t.Run("domain change takes effect", func(t *testing.T) {
		body := map[string]interface{}{
			"subdomain":     "renamed",
			"custom_domain": "portal.renamed.example",
		}
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/schools/"+env.tc.School.ID.String()+"/domains", body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		// Old host is gone, new hosts resolve.
		_, err := env.resolver.Resolve(ctx, host)
		assert.Equal(t, tenant.ErrTenantNotFound, err)

		got, err := env.resolver.Resolve(ctx, "renamed."+testPlatformHost)
		require.NoError(t, err)
		assert.Equal(t, env.tc.School.ID, got.ID)

		got, err = env.resolver.Resolve(ctx, "portal.renamed.example")
		require.NoError(t, err)
		assert.Equal(t, env.tc.School.ID, got.ID)
	})

	t.Run("unknown school", func(t *testing.T) {
		body := map[string]interface{}{"subdomain": "ghost"}
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/schools/00000000-0000-0000-0000-000000000001/domains", body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestSchoolHandler_UpdatePlan(t *testing.T) {
	env := setupSchoolTestRouter(t)
	defer env.tc.Cleanup()

	adminToken := env.platformAdminToken(t)

	t.Run("plan change persists", func(t *testing.T) {
		body := map[string]interface{}{
			"subscription_tier": "premium",
			"feature_flags":     map[string]bool{"library": true},
		}
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/schools/"+env.tc.School.ID.String()+"/plan", body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var school models.School
		require.NoError(t, env.tc.DB.First(&school, "id = ?", env.tc.School.ID).Error)
		assert.Equal(t, "premium", school.SubscriptionTier)
		assert.True(t, school.FeatureFlags["library"])
	})

	t.Run("unknown tier", func(t *testing.T) {
		body := map[string]interface{}{"subscription_tier": "platinum"}
		req := testutil.AuthenticatedRequest(t, "PUT", "/api/v1/schools/"+env.tc.School.ID.String()+"/plan", body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSchoolHandler_Members(t *testing.T) {
	env := setupSchoolTestRouter(t)
	defer env.tc.Cleanup()

	// A principal at the test school manages members there.
	principal := testutil.CreateTestUser(t, env.tc.DB)
	pm := testutil.CreateTestMembership(t, env.tc.DB, principal, env.tc.School, models.RolePrincipal)
	principalToken := testutil.GenerateTestToken(t, env.tc.JWTService, principal, pm)

	membersPath := "/api/v1/schools/" + env.tc.School.ID.String() + "/members/"

	t.Run("principal invites a member", func(t *testing.T) {
		body := map[string]interface{}{
			"email": "new.teacher@example.com",
			"name":  "New Teacher",
			"role":  "teacher",
		}
		req := testutil.AuthenticatedRequest(t, "POST", membersPath, body, principalToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var resp dto.MembershipDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "teacher", resp.Role)
		assert.Equal(t, int64(1), resp.PermissionVersion)
	})

	t.Run("duplicate invite conflicts", func(t *testing.T) {
		body := map[string]interface{}{"email": "new.teacher@example.com", "role": "teacher"}
		req := testutil.AuthenticatedRequest(t, "POST", membersPath, body, principalToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("teacher may not manage members", func(t *testing.T) {
		body := map[string]interface{}{"email": "sneaky@example.com", "role": "teacher"}
		req := testutil.AuthenticatedRequest(t, "POST", membersPath, body, env.tc.Token)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("principal of school A may not manage school B", func(t *testing.T) {
		schoolB := testutil.CreateTestSchool(t, env.tc.DB)
		body := map[string]interface{}{"email": "target@example.com", "role": "teacher"}
		req := testutil.AuthenticatedRequest(t, "POST", "/api/v1/schools/"+schoolB.ID.String()+"/members/", body, principalToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("platform admin manages any school", func(t *testing.T) {
		adminToken := env.platformAdminToken(t)
		body := map[string]interface{}{"email": "admin.invited@example.com", "role": "registrar"}
		req := testutil.AuthenticatedRequest(t, "POST", membersPath, body, adminToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("role update bumps version", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		invited, err := env.store.GetUserByEmail(ctx, "new.teacher@example.com")
		require.NoError(t, err)

		body := map[string]interface{}{"role": "form_teacher"}
		req := testutil.AuthenticatedRequest(t, "PUT", membersPath+invited.ID.String(), body, principalToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.MembershipDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "form_teacher", resp.Role)
		assert.Equal(t, int64(2), resp.PermissionVersion)
	})

	t.Run("status update", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		invited, err := env.store.GetUserByEmail(ctx, "new.teacher@example.com")
		require.NoError(t, err)

		body := map[string]interface{}{"status": "suspended"}
		req := testutil.AuthenticatedRequest(t, "PUT", membersPath+invited.ID.String(), body, principalToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.MembershipDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "suspended", resp.Status)
	})

	t.Run("archive member", func(t *testing.T) {
		ctx := testutil.TestContext(t)
		invited, err := env.store.GetUserByEmail(ctx, "new.teacher@example.com")
		require.NoError(t, err)

		req := testutil.AuthenticatedRequest(t, "DELETE", membersPath+invited.ID.String(), nil, principalToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)

		m, err := env.store.FindMembership(ctx, invited.ID, env.tc.School.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusArchived, m.Status)
	})

	t.Run("unknown member", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "PUT", membersPath+"00000000-0000-0000-0000-000000000002", map[string]interface{}{"role": "teacher"}, principalToken)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
