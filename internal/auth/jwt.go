package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carry the tenant context of a session. SchoolID is the active
// school; it is nil only for a super_admin acting platform-wide, or when the
// user must still pick among several memberships. Permission sets are never
// embedded, only PermissionVersion, so a permission change takes effect
// within one token TTL without revocation.
type Claims struct {
	UserID            uuid.UUID  `json:"user_id"`
	SchoolID          *uuid.UUID `json:"school_id,omitempty"`
	Role              string     `json:"role"`
	PermissionVersion int64      `json:"permission_version"`
	Email             string     `json:"email"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret []byte
	expiry time.Duration
}

func NewJWTService(secret string, expiry time.Duration) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		expiry: expiry,
	}
}

func (s *JWTService) GenerateToken(userID uuid.UUID, schoolID *uuid.UUID, role string, permissionVersion int64, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:            userID,
		SchoolID:          schoolID,
		Role:              role,
		PermissionVersion: permissionVersion,
		Email:             email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "schoolyard",
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
