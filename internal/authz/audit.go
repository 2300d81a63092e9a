package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/schoolyard/internal/tasks"
)

// Auditor makes every deny (and every sensitive allow) attributable. Events
// are logged immediately and persisted asynchronously via the worker;
// recording never blocks or fails an authorization decision.
type Auditor struct {
	client *asynq.Client // optional
	logger *slog.Logger
}

func NewAuditor(client *asynq.Client, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{client: client, logger: logger}
}

func (a *Auditor) RecordAllow(ctx context.Context, userID uuid.UUID, schoolID *uuid.UUID, action, reason string) {
	a.logger.Info("authorization allow",
		"user_id", userID, "school_id", schoolIDValue(schoolID),
		"action", action, "reason", reason,
	)
	a.enqueue(ctx, userID, schoolID, action, "allow", reason)
}

func (a *Auditor) RecordDeny(ctx context.Context, userID uuid.UUID, schoolID *uuid.UUID, action string, reason DenyReason) {
	a.logger.Warn("authorization deny",
		"user_id", userID, "school_id", schoolIDValue(schoolID),
		"action", action, "reason", string(reason),
	)
	a.enqueue(ctx, userID, schoolID, action, "deny", string(reason))
}

func (a *Auditor) enqueue(ctx context.Context, userID uuid.UUID, schoolID *uuid.UUID, action, decision, reason string) {
	if a.client == nil {
		return
	}

	task, err := tasks.NewAuditRecordTask(tasks.AuditRecordPayload{
		UserID:     userID,
		SchoolID:   schoolID,
		Action:     action,
		Decision:   decision,
		Reason:     reason,
		OccurredAt: time.Now(),
	})
	if err != nil {
		a.logger.Error("building audit task", "error", err)
		return
	}

	if _, err := a.client.EnqueueContext(ctx, task, asynq.Queue("low")); err != nil {
		a.logger.Error("enqueueing audit task", "error", err)
	}
}

func schoolIDValue(id *uuid.UUID) string {
	if id == nil {
		return "platform"
	}
	return id.String()
}
