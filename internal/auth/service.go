package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/internal/identity"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountSuspended    = errors.New("account is not active")
	ErrNoActiveMembership  = errors.New("user has no active school membership")
	ErrNotAMember          = errors.New("user is not a member of this school")
	ErrMembershipSuspended = errors.New("membership is suspended")
)

// Service is the credential issuer: it authenticates users and mints the
// tokens that carry tenant context.
type Service struct {
	identity *identity.Store
	jwt      *JWTService
	refresh  *RefreshStore
}

func NewService(identityStore *identity.Store, jwt *JWTService, refresh *RefreshStore) *Service {
	return &Service{identity: identityStore, jwt: jwt, refresh: refresh}
}

type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IP        string
}

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// Login authenticates by email and password and mints an access/refresh
// token pair. The active school defaults to the user's primary school if
// that membership is active, otherwise to the single active membership if
// exactly one exists; with several candidates and no default the token is
// minted without an active school and the client must switch explicitly.
func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	user, err := s.identity.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			// Same error as a bad password so callers cannot probe
			// for registered addresses.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if user.Status != models.StatusActive {
		return nil, ErrAccountSuspended
	}

	active := user.ActiveMemberships()
	if len(active) == 0 && user.PlatformRole != models.PlatformSuperAdmin {
		return nil, ErrNoActiveMembership
	}

	chosen := defaultMembership(user, active)
	accessToken, err := s.mintFor(user, chosen)
	if err != nil {
		return nil, err
	}

	refreshToken, _, err := s.refresh.Issue(ctx, user.ID, membershipSchoolID(chosen), input.UserAgent, input.IP)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// SwitchSchool reissues an access token scoped to the target school without
// re-authentication. The caller must hold a live active membership there;
// the new token carries that membership's current permission version.
// Switching is idempotent: repeating it yields equivalent claims. When the
// caller presents its refresh token, the session is re-pointed at the target
// school so later refreshes keep the switched context.
func (s *Service) SwitchSchool(ctx context.Context, claims *Claims, targetSchoolID uuid.UUID, refreshToken string) (string, error) {
	user, err := s.identity.GetUser(ctx, claims.UserID)
	if err != nil {
		return "", err
	}
	if user.Status != models.StatusActive {
		return "", ErrAccountSuspended
	}

	m, err := s.identity.FindMembership(ctx, claims.UserID, targetSchoolID)
	if err != nil {
		if errors.Is(err, identity.ErrMembershipNotFound) {
			return "", ErrNotAMember
		}
		return "", err
	}

	switch m.Status {
	case models.StatusActive:
	case models.StatusSuspended, models.StatusInactive:
		return "", ErrMembershipSuspended
	default:
		// Archived or pending memberships read as absent.
		return "", ErrNotAMember
	}

	schoolID := m.SchoolID
	if refreshToken != "" {
		if err := s.refresh.SetSchool(ctx, refreshToken, &schoolID); err != nil {
			return "", err
		}
	}
	return s.jwt.GenerateToken(user.ID, &schoolID, string(m.Role), m.PermissionVersion, user.Email)
}

// Refresh exchanges a refresh token for a fresh token pair. Rotation is
// single-use; presenting an already-rotated token fails. The new access
// token keeps the session's active school while that membership is still
// active, and falls back to the default school otherwise.
func (s *Service) Refresh(ctx context.Context, refreshToken, userAgent, ip string) (*AuthResponse, error) {
	next, record, err := s.refresh.Rotate(ctx, refreshToken, userAgent, ip)
	if err != nil {
		return nil, err
	}

	user, err := s.identity.GetUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if user.Status != models.StatusActive {
		return nil, ErrAccountSuspended
	}

	active := user.ActiveMemberships()
	if len(active) == 0 && user.PlatformRole != models.PlatformSuperAdmin {
		return nil, ErrNoActiveMembership
	}

	var chosen *models.Membership
	if record.SchoolID != nil {
		for i := range active {
			if active[i].SchoolID == *record.SchoolID {
				chosen = &active[i]
				break
			}
		}
	}
	if chosen == nil {
		// Session school is gone or no longer active: fall back to
		// the default and re-point the session at it.
		chosen = defaultMembership(user, active)
		if err := s.refresh.SetSchool(ctx, next, membershipSchoolID(chosen)); err != nil {
			return nil, err
		}
	}

	accessToken, err := s.mintFor(user, chosen)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: next,
		User:         user,
	}, nil
}

// Logout revokes the refresh token. Access tokens stay valid until their
// short TTL runs out; statelessness is traded for instant revocation.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.refresh.Revoke(ctx, refreshToken)
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.identity.GetUser(ctx, id)
}

// defaultMembership picks the default active school: the primary school if
// that membership is active, otherwise the single active membership if
// exactly one exists. Nil means no single default.
func defaultMembership(user *models.User, active []models.Membership) *models.Membership {
	if user.PrimarySchoolID != nil {
		for i := range active {
			if active[i].SchoolID == *user.PrimarySchoolID {
				return &active[i]
			}
		}
	}
	if len(active) == 1 {
		return &active[0]
	}
	return nil
}

// mintFor mints an access token scoped to the given membership. With no
// membership the token is platform-scoped: super admins act platform-wide;
// everyone else must switch before any school-scoped action authorizes.
func (s *Service) mintFor(user *models.User, m *models.Membership) (string, error) {
	if m == nil {
		return s.jwt.GenerateToken(user.ID, nil, string(user.PlatformRole), 0, user.Email)
	}
	schoolID := m.SchoolID
	return s.jwt.GenerateToken(user.ID, &schoolID, string(m.Role), m.PermissionVersion, user.Email)
}

func membershipSchoolID(m *models.Membership) *uuid.UUID {
	if m == nil {
		return nil
	}
	id := m.SchoolID
	return &id
}
