package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditDecision string

const (
	AuditAllow AuditDecision = "allow"
	AuditDeny  AuditDecision = "deny"
)

// AuditEvent records an authorization decision. Every deny is recorded;
// allows are recorded for security-sensitive actions and platform-admin
// bypasses. Rows are written asynchronously by the worker.
type AuditEvent struct {
	Base
	UserID     uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	SchoolID   *uuid.UUID    `gorm:"type:uuid;index" json:"school_id,omitempty"`
	Action     string        `gorm:"not null" json:"action"`
	Decision   AuditDecision `gorm:"not null" json:"decision"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `gorm:"index" json:"occurred_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
