package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/auth"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/pkg/crypto"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&models.School{},
		&models.User{},
		&models.Membership{},
		&models.RefreshToken{},
		&models.AuditEvent{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestSchool creates an active school with a unique subdomain
func CreateTestSchool(t *testing.T, db *gorm.DB) *models.School {
	t.Helper()

	school := &models.School{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:             "Test School",
		Subdomain:        "school-" + uuid.New().String()[:8],
		Status:           models.StatusActive,
		SubscriptionTier: "standard",
	}

	if err := db.Create(school).Error; err != nil {
		t.Fatalf("failed to create test school: %v", err)
	}

	return school
}

// CreateTestUser creates an active user with a known password ("testpassword123")
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        "test-" + uuid.New().String()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		Status:       models.StatusActive,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestMembership links a user to a school with the given role
func CreateTestMembership(t *testing.T, db *gorm.DB, user *models.User, school *models.School, role models.SchoolRole) *models.Membership {
	t.Helper()

	membership := &models.Membership{
		Base: models.Base{
			ID: uuid.New(),
		},
		UserID:            user.ID,
		SchoolID:          school.ID,
		Role:              role,
		Status:            models.StatusActive,
		PermissionVersion: 1,
	}

	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed to create test membership: %v", err)
	}

	if user.PrimarySchoolID == nil {
		user.PrimarySchoolID = &school.ID
		if err := db.Model(user).Update("primary_school_id", school.ID).Error; err != nil {
			t.Fatalf("failed to set primary school: %v", err)
		}
	}

	membership.School = school
	return membership
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// CreateTestEncryptor creates an encryptor with an ephemeral key
func CreateTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	enc, err := crypto.NewEncryptor("")
	if err != nil {
		t.Fatalf("failed to create test encryptor: %v", err)
	}
	return enc
}

// GenerateTestToken generates a school-scoped token for the given membership
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User, m *models.Membership) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, &m.SchoolID, string(m.Role), m.PermissionVersion, user.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// GenerateTestPlatformToken generates a platform-scoped token (no active school)
func GenerateTestPlatformToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, nil, string(user.PlatformRole), 0, user.Email)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	School     *models.School
	User       *models.User
	Membership *models.Membership
	Token      string
}

// NewTestContext creates a complete test setup: a school, an active teacher
// membership, and a school-scoped token for it
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	school := CreateTestSchool(t, db)
	user := CreateTestUser(t, db)
	membership := CreateTestMembership(t, db, user, school, models.RoleTeacher)
	token := GenerateTestToken(t, jwtService, user, membership)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		School:     school,
		User:       user,
		Membership: membership,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
