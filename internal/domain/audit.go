package domain

import "time"

// AuditAction names what an audit entry records.
type AuditAction string

const (
	AuditCreated  AuditAction = "created"
	AuditDecision AuditAction = "decision"
	AuditClaimed  AuditAction = "claimed"
)

// SystemActor is the actor recorded for entries the service writes itself.
const SystemActor = "system"

// AuditEntry is one append-only audit record for a queued item.
type AuditEntry struct {
	Seq       int         `db:"seq"        json:"seq"` // 1-based, per queue item
	QueueID   string      `db:"queue_id"   json:"queue_id"`
	Timestamp time.Time   `db:"created_at" json:"timestamp"`
	Action    AuditAction `db:"action"     json:"action"`
	Actor     string      `db:"actor"      json:"actor"`
	Notes     string      `db:"notes"      json:"notes,omitempty"`
	Status    Status      `db:"status"     json:"status"` // status the entry leaves behind
}
