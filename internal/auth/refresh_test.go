package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/schoolyard/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func refreshTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RefreshToken{}))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestClaimForRotation_AlreadyRevoked(t *testing.T) {
	db := refreshTestDB(t)

	now := time.Now()
	revoked := now.Add(-time.Minute)
	current := &models.RefreshToken{
		UserID:    uuid.New(),
		TokenHash: "hash-raced",
		ExpiresAt: now.Add(time.Hour),
		RevokedAt: &revoked,
	}
	require.NoError(t, db.Create(current).Error)

	// A concurrent rotation won the race and revoked the row after our
	// read saw it live. The guarded update must match zero rows and
	// surface it as a rotated token.
	err := claimForRotation(db, current.ID, uuid.New(), now)
	assert.Equal(t, ErrRevokedRefreshToken, err)

	// The loser must not overwrite the winner's rotation link.
	var reloaded models.RefreshToken
	require.NoError(t, db.First(&reloaded, "id = ?", current.ID).Error)
	assert.Nil(t, reloaded.ReplacedByID)
}

func TestClaimForRotation_Live(t *testing.T) {
	db := refreshTestDB(t)

	current := &models.RefreshToken{
		UserID:    uuid.New(),
		TokenHash: "hash-live",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(current).Error)

	replacementID := uuid.New()
	now := time.Now()
	require.NoError(t, claimForRotation(db, current.ID, replacementID, now))

	var reloaded models.RefreshToken
	require.NoError(t, db.First(&reloaded, "id = ?", current.ID).Error)
	require.NotNil(t, reloaded.RevokedAt)
	require.NotNil(t, reloaded.ReplacedByID)
	assert.Equal(t, replacementID, *reloaded.ReplacedByID)
}

func TestRotate_LostRaceLeavesNoReplacement(t *testing.T) {
	db := refreshTestDB(t)
	store := NewRefreshStore(db, time.Hour)
	ctx := context.Background()

	plaintext, record, err := store.Issue(ctx, uuid.New(), nil, "", "")
	require.NoError(t, err)

	// Another instance rotates first.
	_, _, err = store.Rotate(ctx, plaintext, "", "")
	require.NoError(t, err)

	// Our attempt with the same token loses and must not leak a second
	// replacement chain.
	_, _, err = store.Rotate(ctx, plaintext, "", "")
	assert.Equal(t, ErrRevokedRefreshToken, err)

	var count int64
	require.NoError(t, db.Model(&models.RefreshToken{}).
		Where("user_id = ?", record.UserID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}
