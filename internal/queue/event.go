// Package queue carries lock audit events over RabbitMQ and turns them into
// lines of logs/lock-audit.log.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// AuditQueue is the durable queue audit events are published to.
const AuditQueue = "lock.audit"

// Audit event types.
const (
	EventPasscodeSet     = "passcode.set"
	EventUnlockSucceeded = "unlock.succeeded"
	EventUnlockFailed    = "unlock.failed"
	EventUnlockLocked    = "unlock.locked"
	EventAppDeleted      = "app.deleted"
)

// AuditEvent describes one lock gate decision. It never carries the
// submitted sequence, the digest or the hint.
type AuditEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	AppID      uint64 `json:"app_id"`
	UserID     uint64 `json:"user_id"`
	SessionID  string `json:"session_id,omitempty"`
	RetryAfter int    `json:"retry_after_sec,omitempty"` // set on unlock.locked
	OccurredAt string `json:"occurred_at"`               // RFC3339, UTC
}

// NewAuditEvent stamps an event with a fresh id and the current time.
func NewAuditEvent(typ string, appID, userID uint64, sessionID string) AuditEvent {
	return AuditEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		AppID:      appID,
		UserID:     userID,
		SessionID:  sessionID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
