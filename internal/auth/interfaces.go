package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/database/models"
)

// Authenticator defines the interface for credential operations.
type Authenticator interface {
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	SwitchSchool(ctx context.Context, claims *Claims, targetSchoolID uuid.UUID, refreshToken string) (string, error)
	Refresh(ctx context.Context, refreshToken, userAgent, ip string) (*AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID uuid.UUID, schoolID *uuid.UUID, role string, permissionVersion int64, email string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
