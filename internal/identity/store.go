package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrSchoolNotFound     = errors.New("school not found")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrAlreadyMember      = errors.New("user already has a membership in this school")
)

// AuthContext is the flattened authorization view of one (user, school)
// pair, the unit the context cache stores.
type AuthContext struct {
	UserID            uuid.UUID         `json:"user_id"`
	SchoolID          uuid.UUID         `json:"school_id"`
	Role              models.SchoolRole `json:"role"`
	Permissions       []string          `json:"permissions"`
	Status            models.Status     `json:"status"`
	PermissionVersion int64             `json:"permission_version"`
	SchoolStatus      models.Status     `json:"school_status"`
	SubscriptionTier  string            `json:"subscription_tier"`
	FeatureFlags      map[string]bool   `json:"feature_flags,omitempty"`
}

// Invalidator evicts cached authorization contexts. The context cache
// implements it; the store calls it after every membership mutation so
// invalidation can never be skipped by writing around the store.
type Invalidator interface {
	Invalidate(ctx context.Context, userID, schoolID uuid.UUID) error
	InvalidateSchool(ctx context.Context, schoolID uuid.UUID) error
}

// Store is the single source of truth for users, memberships, and schools.
type Store struct {
	db          *gorm.DB
	enc         *crypto.Encryptor
	invalidator Invalidator
	logger      *slog.Logger
}

func NewStore(db *gorm.DB, enc *crypto.Encryptor, logger *slog.Logger) *Store {
	return &Store{db: db, enc: enc, logger: logger}
}

// SetInvalidator wires the context cache in after construction; the cache
// itself loads through the store, so the two are linked post-hoc.
func (s *Store) SetInvalidator(inv Invalidator) {
	s.invalidator = inv
}

func (s *Store) invalidate(ctx context.Context, userID, schoolID uuid.UUID) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, userID, schoolID); err != nil {
		s.logger.Warn("cache invalidation failed",
			"user_id", userID, "school_id", schoolID, "error", err)
	}
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Memberships").
		Preload("Memberships.School").
		First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Memberships").
		Where("email = ?", email).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetSchool(ctx context.Context, id uuid.UUID) (*models.School, error) {
	var school models.School
	if err := s.db.WithContext(ctx).First(&school, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSchoolNotFound
		}
		return nil, err
	}
	return &school, nil
}

func (s *Store) FindMembership(ctx context.Context, userID, schoolID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND school_id = ?", userID, schoolID).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, err
	}
	return &m, nil
}

// LoadContext builds the AuthContext for one (user, school) pair. It is the
// loader behind the context cache.
func (s *Store) LoadContext(ctx context.Context, userID, schoolID uuid.UUID) (*AuthContext, error) {
	m, err := s.FindMembership(ctx, userID, schoolID)
	if err != nil {
		return nil, err
	}
	school, err := s.GetSchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	return &AuthContext{
		UserID:            m.UserID,
		SchoolID:          m.SchoolID,
		Role:              m.Role,
		Permissions:       []string(m.Permissions),
		Status:            m.Status,
		PermissionVersion: m.PermissionVersion,
		SchoolStatus:      school.Status,
		SubscriptionTier:  school.SubscriptionTier,
		FeatureFlags:      map[string]bool(school.FeatureFlags),
	}, nil
}

// InviteInput describes a school enrolling or inviting a person by email.
type InviteInput struct {
	SchoolID    uuid.UUID
	Email       string
	Name        string
	Role        models.SchoolRole
	Permissions []string
	// Details are role-specific fields (student number, employee id,
	// linked children ids), encrypted at rest and opaque to authorization.
	Details map[string]string
}

// InviteMember appends a membership to the user identified by email, or
// creates the user and the membership atomically when no such user exists.
// This is what lets one person be a teacher at school A and a parent at
// school B under one login. Duplicate memberships are rejected.
func (s *Store) InviteMember(ctx context.Context, input InviteInput) (*models.Membership, error) {
	if !input.Role.IsValid() {
		return nil, fmt.Errorf("invalid school role %q", input.Role)
	}

	details, err := s.encryptDetails(input.Details)
	if err != nil {
		return nil, err
	}

	var membership *models.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Where("email = ?", input.Email).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Email:        input.Email,
				Name:         input.Name,
				PasswordHash: "",
				PlatformRole: models.PlatformStaff,
				Status:       models.StatusPendingVerification,
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			var count int64
			if err := tx.Model(&models.Membership{}).
				Where("user_id = ? AND school_id = ?", user.ID, input.SchoolID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ErrAlreadyMember
			}
		}

		m := models.Membership{
			UserID:            user.ID,
			SchoolID:          input.SchoolID,
			Role:              input.Role,
			Permissions:       models.StringSet(input.Permissions),
			Status:            models.StatusActive,
			PermissionVersion: 1,
			DetailsEncrypted:  details,
		}
		if err := tx.Create(&m).Error; err != nil {
			return err
		}

		// First membership becomes the default active tenant on login.
		if user.PrimarySchoolID == nil {
			if err := tx.Model(&user).Update("primary_school_id", input.SchoolID).Error; err != nil {
				return err
			}
		}

		membership = &m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, membership.UserID, membership.SchoolID)
	return membership, nil
}

// UpdateInput mutates a membership's role and/or explicit permissions.
// Nil fields are left unchanged.
type UpdateInput struct {
	Role        *models.SchoolRole
	Permissions *[]string
}

// UpdateMembership applies a role/permission change and bumps
// PermissionVersion in the same transaction, so a concurrent read never
// observes a new role with a stale version.
func (s *Store) UpdateMembership(ctx context.Context, userID, schoolID uuid.UUID, input UpdateInput) (*models.Membership, error) {
	if input.Role != nil && !input.Role.IsValid() {
		return nil, fmt.Errorf("invalid school role %q", *input.Role)
	}

	var updated models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Membership
		if err := tx.Where("user_id = ? AND school_id = ?", userID, schoolID).
			First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMembershipNotFound
			}
			return err
		}

		if input.Role != nil {
			m.Role = *input.Role
		}
		if input.Permissions != nil {
			m.Permissions = models.StringSet(*input.Permissions)
		}
		m.PermissionVersion++

		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID, schoolID)
	return &updated, nil
}

// SetMembershipStatus changes a membership's lifecycle status, bumping the
// permission version in the same transaction.
func (s *Store) SetMembershipStatus(ctx context.Context, userID, schoolID uuid.UUID, status models.Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Membership{}).
			Where("user_id = ? AND school_id = ?", userID, schoolID).
			Updates(map[string]interface{}{
				"status":             status,
				"permission_version": gorm.Expr("permission_version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMembershipNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID, schoolID)
	return nil
}

// ArchiveMembership soft-deletes a membership on offboarding. The row stays
// so audit history survives; all authorization against it denies.
func (s *Store) ArchiveMembership(ctx context.Context, userID, schoolID uuid.UUID) error {
	return s.SetMembershipStatus(ctx, userID, schoolID, models.StatusArchived)
}

// MembershipDetails decrypts a membership's role-specific fields.
func (s *Store) MembershipDetails(m *models.Membership) (map[string]string, error) {
	if len(m.DetailsEncrypted) == 0 {
		return nil, nil
	}
	plaintext, err := s.enc.Decrypt(m.DetailsEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypting membership details: %w", err)
	}
	var details map[string]string
	if err := json.Unmarshal(plaintext, &details); err != nil {
		return nil, fmt.Errorf("decoding membership details: %w", err)
	}
	return details, nil
}

func (s *Store) encryptDetails(details map[string]string) ([]byte, error) {
	if len(details) == 0 {
		return nil, nil
	}
	plaintext, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	ciphertext, err := s.enc.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting membership details: %w", err)
	}
	return ciphertext, nil
}

// CreateSchool registers a new tenant.
func (s *Store) CreateSchool(ctx context.Context, school *models.School) error {
	if school.Status == "" {
		school.Status = models.StatusActive
	}
	return s.db.WithContext(ctx).Create(school).Error
}

// UpdateSchoolDomains changes a school's subdomain and/or custom domain and
// returns the hosts that must be evicted from the tenant resolver cache
// (both the old and the new ones).
func (s *Store) UpdateSchoolDomains(ctx context.Context, schoolID uuid.UUID, subdomain string, customDomain *string, platformRoot string) ([]string, error) {
	var staleHosts []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var school models.School
		if err := tx.First(&school, "id = ?", schoolID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSchoolNotFound
			}
			return err
		}

		staleHosts = school.Hosts(platformRoot)

		school.Subdomain = subdomain
		school.CustomDomain = customDomain
		if err := tx.Save(&school).Error; err != nil {
			return err
		}

		staleHosts = append(staleHosts, school.Hosts(platformRoot)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return staleHosts, nil
}

// UpdateSchoolPlan changes a school's subscription tier and feature flags
// and invalidates every cached context scoped to the school.
func (s *Store) UpdateSchoolPlan(ctx context.Context, schoolID uuid.UUID, tier string, flags map[string]bool) error {
	res := s.db.WithContext(ctx).Model(&models.School{}).
		Where("id = ?", schoolID).
		Updates(map[string]interface{}{
			"subscription_tier": tier,
			"feature_flags":     models.FlagMap(flags),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSchoolNotFound
	}

	if s.invalidator != nil {
		if err := s.invalidator.InvalidateSchool(ctx, schoolID); err != nil {
			s.logger.Warn("school cache invalidation failed", "school_id", schoolID, "error", err)
		}
	}
	return nil
}
