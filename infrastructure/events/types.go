// Package events defines the moderation lifecycle events published on Redis
// pub/sub for dashboards and delivery services.
package events

import (
	"time"

	"github.com/google/uuid"
)

// DefaultChannel is the pub/sub channel moderation events are published on.
const DefaultChannel = "moderation:events"

// EventType represents the type of moderation event.
type EventType string

const (
	// ItemQueued is emitted when an item enters the review queue.
	ItemQueued EventType = "ITEM_QUEUED"
	// ItemDecided is emitted after a decision is committed.
	ItemDecided EventType = "ITEM_DECIDED"
	// ItemReleased is emitted when low-risk output bypasses the queue.
	ItemReleased EventType = "ITEM_RELEASED"
)

// ModerationEvent is the envelope for all moderation events.
type ModerationEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType EventType `json:"event_type"`
	QueueID   string    `json:"queue_id,omitempty"`
	ResultID  string    `json:"result_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// QueuedPayload contains data for ITEM_QUEUED events.
type QueuedPayload struct {
	Series    string   `json:"series"`
	RiskScore int      `json:"risk_score"`
	RiskLevel string   `json:"risk_level"`
	Flags     []string `json:"flags,omitempty"`
}

// DecidedPayload contains data for ITEM_DECIDED events.
type DecidedPayload struct {
	Status      string `json:"status"`
	ModeratorID string `json:"moderator_id"`
	Deliverable bool   `json:"deliverable"`
}

// ReleasedPayload contains data for ITEM_RELEASED events.
type ReleasedPayload struct {
	Series    string `json:"series"`
	RiskScore int    `json:"risk_score"`
}

// New creates an event with a fresh id.
func New(eventType EventType, resultID, queueID string, at time.Time, payload any) ModerationEvent {
	return ModerationEvent{
		EventID:   uuid.New(),
		EventType: eventType,
		QueueID:   queueID,
		ResultID:  resultID,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}
