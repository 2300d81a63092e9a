package tasks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeAuditRecord       = "audit:record"
	TypeRefreshTokenPurge = "auth:purge_refresh_tokens"
)

// AuditRecordPayload carries one authorization decision to be persisted.
type AuditRecordPayload struct {
	UserID     uuid.UUID  `json:"user_id"`
	SchoolID   *uuid.UUID `json:"school_id,omitempty"`
	Action     string     `json:"action"`
	Decision   string     `json:"decision"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func NewAuditRecordTask(payload AuditRecordPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAuditRecord, data), nil
}

// RefreshTokenPurgePayload bounds the purge: rows expired or revoked before
// the retention window are deleted.
type RefreshTokenPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

func NewRefreshTokenPurgeTask(payload RefreshTokenPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRefreshTokenPurge, data), nil
}
