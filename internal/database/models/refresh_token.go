package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a long-lived credential stored by hash only. Refresh is
// single-use: rotation revokes the row and links its replacement, so reuse
// of a rotated token is detectable.
type RefreshToken struct {
	Base
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	// SchoolID is the session's active school, restored on refresh and
	// re-pointed by switch-school. Nil means platform scope.
	SchoolID  *uuid.UUID `gorm:"type:uuid" json:"-"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	// ReplacedByID links to the token minted by rotation.
	ReplacedByID *uuid.UUID `gorm:"type:uuid" json:"-"`

	UserAgent string `json:"-"`
	IP        string `json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

// Usable reports whether the token can still be exchanged at time now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
