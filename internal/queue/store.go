// Package queue owns the moderation queue: the Store contract with its
// in-memory backend, the low-risk release log, and the Manager that routes
// intakes and serves moderator reads.
package queue

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/moderation/internal/audit"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// Filter selects queue items. Zero fields match everything.
type Filter struct {
	Status    domain.Status    `json:"status,omitempty"`
	RiskLevel domain.RiskLevel `json:"risk_level,omitempty"`
}

// ParseFilter validates raw filter values.
func ParseFilter(status, riskLevel string) (Filter, error) {
	var f Filter
	if status != "" {
		s, err := domain.ParseStatus(status)
		if err != nil {
			return Filter{}, err
		}
		f.Status = s
	}
	if riskLevel != "" {
		l, err := domain.ParseRiskLevel(riskLevel)
		if err != nil {
			return Filter{}, err
		}
		f.RiskLevel = l
	}
	return f, nil
}

// Matches reports whether item passes the filter.
func (f Filter) Matches(item *domain.ModerationItem) bool {
	return (f.Status == "" || item.Status == f.Status) &&
		(f.RiskLevel == "" || item.RiskLevel == f.RiskLevel)
}

// Transition is a decision to apply atomically to a pending item.
type Transition struct {
	QueueID      string
	Status       domain.Status // terminal
	ModeratorID  string
	Notes        string
	EditedOutput string
	// At is the proposed decided_at. Stores move it forward to the item's
	// last audit timestamp if the clock is behind.
	At time.Time
}

// Count is the number of items sharing a risk level and status.
type Count struct {
	RiskLevel domain.RiskLevel `db:"risk_level"`
	Status    domain.Status    `db:"status"`
	N         int              `db:"n"`
}

// Store persists moderation items and their audit trails.
type Store interface {
	audit.Log

	// Create persists a pending item together with its created entry.
	Create(ctx context.Context, item *domain.ModerationItem, created domain.AuditEntry) error
	// Get returns one item or a NotFound error.
	Get(ctx context.Context, queueID string) (*domain.ModerationItem, error)
	// GetWithAudit returns an item and its trail from one consistent read.
	GetWithAudit(ctx context.Context, queueID string) (*domain.ModerationItem, []domain.AuditEntry, error)
	// List returns matching items newest first, ties broken by queue id
	// descending.
	List(ctx context.Context, f Filter) ([]*domain.ModerationItem, error)
	// Claim appends a claimed entry when the item is still pending and
	// returns the item with its trail.
	Claim(ctx context.Context, queueID, moderatorID string, at time.Time) (*domain.ModerationItem, []domain.AuditEntry, error)
	// Decide moves a pending item to a terminal status and appends the
	// decision entry as one atomic step. A non-pending item yields a
	// *domain.ConflictError.
	Decide(ctx context.Context, t Transition) (*domain.ModerationItem, domain.AuditEntry, error)
	// Counts groups items created at or after since (zero means all) by risk
	// level and status.
	Counts(ctx context.Context, since time.Time) ([]Count, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}
