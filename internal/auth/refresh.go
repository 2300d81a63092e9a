package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/hugh/schoolyard/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrExpiredRefreshToken = errors.New("refresh token has expired")
	ErrRevokedRefreshToken = errors.New("refresh token is revoked")
)

// RefreshStore persists long-lived refresh tokens by hash. Refresh is
// single-use: Rotate revokes the presented token and links its replacement.
type RefreshStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewRefreshStore(db *gorm.DB, ttl time.Duration) *RefreshStore {
	return &RefreshStore{db: db, ttl: ttl}
}

// HashToken derives the storage key for a refresh token. Plaintext tokens
// are never written to the database.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newRefreshToken() (string, error) {
	buf, err := crypto.GenerateRandomBytes(32)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue mints a refresh token for the user and stores its hash. The session
// remembers the active school so Refresh can restore it; a nil schoolID is a
// platform-scoped session.
func (s *RefreshStore) Issue(ctx context.Context, userID uuid.UUID, schoolID *uuid.UUID, userAgent, ip string) (string, *models.RefreshToken, error) {
	plaintext, err := newRefreshToken()
	if err != nil {
		return "", nil, err
	}

	record := &models.RefreshToken{
		UserID:    userID,
		SchoolID:  schoolID,
		TokenHash: HashToken(plaintext),
		ExpiresAt: time.Now().Add(s.ttl),
		UserAgent: userAgent,
		IP:        ip,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", nil, err
	}

	return plaintext, record, nil
}

// Rotate exchanges a refresh token for a new one, revoking the old record.
// A token that is unknown, already rotated, or revoked fails with
// ErrRevokedRefreshToken; an expired one with ErrExpiredRefreshToken.
func (s *RefreshStore) Rotate(ctx context.Context, plaintext, userAgent, ip string) (string, *models.RefreshToken, error) {
	var newPlaintext string
	var newRecord *models.RefreshToken

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.RefreshToken
		if err := tx.Where("token_hash = ?", HashToken(plaintext)).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRevokedRefreshToken
			}
			return err
		}

		now := time.Now()
		if current.RevokedAt != nil {
			return ErrRevokedRefreshToken
		}
		if !now.Before(current.ExpiresAt) {
			return ErrExpiredRefreshToken
		}

		next, err := newRefreshToken()
		if err != nil {
			return err
		}
		replacement := &models.RefreshToken{
			UserID:    current.UserID,
			SchoolID:  current.SchoolID,
			TokenHash: HashToken(next),
			ExpiresAt: now.Add(s.ttl),
			UserAgent: userAgent,
			IP:        ip,
		}
		if err := tx.Create(replacement).Error; err != nil {
			return err
		}

		if err := claimForRotation(tx, current.ID, replacement.ID, now); err != nil {
			return err
		}

		newPlaintext = next
		newRecord = replacement
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	return newPlaintext, newRecord, nil
}

// claimForRotation revokes the presented token and links its replacement.
// The update is guarded on revoked_at so that, under read-committed
// isolation, concurrent rotations of the same token cannot both win: the
// loser's update matches zero rows, the transaction rolls back its
// replacement, and the caller sees the token as already rotated.
func claimForRotation(tx *gorm.DB, currentID, replacementID uuid.UUID, now time.Time) error {
	res := tx.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", currentID).
		Updates(map[string]interface{}{
			"revoked_at":     now,
			"replaced_by_id": replacementID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRevokedRefreshToken
	}
	return nil
}

// SetSchool re-points a live session at a new active school, so a refresh
// after switch-school restores the switched context rather than the login
// default. Unknown or revoked tokens are ignored.
func (s *RefreshStore) SetSchool(ctx context.Context, plaintext string, schoolID *uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", HashToken(plaintext)).
		Update("school_id", schoolID).Error
}

// Revoke invalidates a refresh token. Revoking an unknown or already
// revoked token is a no-op so logout is idempotent.
func (s *RefreshStore) Revoke(ctx context.Context, plaintext string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", HashToken(plaintext)).
		Update("revoked_at", now).Error
}

// RevokeAllForUser invalidates every live refresh token of a user, used when
// an account is suspended or archived.
func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
}
