//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hugh/schoolyard/internal/auth"
	"github.com/hugh/schoolyard/internal/database"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/internal/identity"
	"github.com/hugh/schoolyard/pkg/config"
	"github.com/hugh/schoolyard/pkg/crypto"
	"github.com/hugh/schoolyard/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env, "seed")

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		log.Fatalf("failed to create encryptor: %v", err)
	}

	store := identity.NewStore(db, encryptor, logger)
	ctx := context.Background()

	// Platform super admin
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail == "" {
		adminEmail = "admin@schoolyard.localhost"
	}
	if adminPassword == "" {
		adminPassword = "admin123!"
	}
	adminHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	admin := models.User{
		Email:        adminEmail,
		PasswordHash: adminHash,
		Name:         "Platform Admin",
		PlatformRole: models.PlatformSuperAdmin,
		Status:       models.StatusActive,
	}
	if err := db.Where("email = ?", adminEmail).FirstOrCreate(&admin).Error; err != nil {
		log.Fatalf("failed to seed admin: %v", err)
	}

	// Two demo schools
	northfield := models.School{
		Name:             "Northfield Academy",
		Subdomain:        "northfield",
		Status:           models.StatusActive,
		SubscriptionTier: "premium",
		FeatureFlags:     models.FlagMap{"library": true, "finance": true},
	}
	if err := db.Where("subdomain = ?", northfield.Subdomain).FirstOrCreate(&northfield).Error; err != nil {
		log.Fatalf("failed to seed school: %v", err)
	}

	riverdale := models.School{
		Name:             "Riverdale Primary",
		Subdomain:        "riverdale",
		Status:           models.StatusActive,
		SubscriptionTier: "free",
	}
	if err := db.Where("subdomain = ?", riverdale.Subdomain).FirstOrCreate(&riverdale).Error; err != nil {
		log.Fatalf("failed to seed school: %v", err)
	}

	// One person, two hats: teacher at Northfield, parent at Riverdale
	demoEmail := "jordan.reyes@example.com"
	if _, err := store.InviteMember(ctx, identity.InviteInput{
		SchoolID: northfield.ID,
		Email:    demoEmail,
		Name:     "Jordan Reyes",
		Role:     models.RoleTeacher,
		Details:  map[string]string{"employee_id": "NF-0042"},
	}); err != nil && err != identity.ErrAlreadyMember {
		log.Fatalf("failed to seed teacher membership: %v", err)
	}
	if _, err := store.InviteMember(ctx, identity.InviteInput{
		SchoolID: riverdale.ID,
		Email:    demoEmail,
		Role:     models.RoleParent,
	}); err != nil && err != identity.ErrAlreadyMember {
		log.Fatalf("failed to seed parent membership: %v", err)
	}

	demoHash, err := auth.HashPassword("demo123!A")
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	if err := db.Model(&models.User{}).
		Where("email = ?", demoEmail).
		Update("password_hash", demoHash).Error; err != nil {
		log.Fatalf("failed to set demo password: %v", err)
	}

	fmt.Println("Seed complete.")
	fmt.Printf("  platform admin: %s / %s (host %s)\n", adminEmail, adminPassword, cfg.Tenant.PlatformHost)
	fmt.Printf("  demo user:      %s / demo123!A (northfield.%s, riverdale.%s)\n",
		demoEmail, cfg.Tenant.PlatformHost, cfg.Tenant.PlatformHost)
}
