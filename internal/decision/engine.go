// Package decision implements the one-shot moderation state machine: a
// pending item moves to exactly one terminal status, and the terminal status
// alone determines what may be shipped.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
)

// Reasons given when no content may be delivered.
const (
	BlockedEscalated = "escalated_for_review"
	BlockedPending   = "pending_review"
)

// transitions maps every action to the terminal status it produces.
var transitions = map[domain.Action]domain.Status{
	domain.ActionApproveAsIs:       domain.StatusApproved,
	domain.ActionApproveWithBuffer: domain.StatusApprovedWithBuffer,
	domain.ActionEditOutput:        domain.StatusEdited,
	domain.ActionSafeResponseOnly:  domain.StatusSafeResponseOnly,
	domain.ActionEscalate:          domain.StatusEscalated,
}

// TargetStatus returns the terminal status action leads to.
func TargetStatus(action domain.Action) (domain.Status, bool) {
	s, ok := transitions[action]
	return s, ok
}

// Moderator is the reviewer making a decision.
type Moderator struct {
	ID         string `json:"id"`
	Privileged bool   `json:"privileged"`
}

// Request is a decision on one queue item. Action accepts action names and
// terminal status names.
type Request struct {
	QueueID      string    `json:"queue_id"`
	Action       string    `json:"action"`
	Moderator    Moderator `json:"moderator"`
	Notes        string    `json:"notes"`
	EditedOutput string    `json:"edited_output,omitempty"`
}

// FinalOutput is what the caller may deliver after a decision.
type FinalOutput struct {
	QueueID       string        `json:"queue_id"`
	ResultID      string        `json:"result_id"`
	Status        domain.Status `json:"status"`
	Content       string        `json:"content,omitempty"`
	Deliverable   bool          `json:"deliverable"`
	BlockedReason string        `json:"blocked_reason,omitempty"`
	DecidedAt     time.Time     `json:"decided_at"`
}

// PolicySource supplies the active policy snapshot.
type PolicySource interface {
	Current() *policy.Snapshot
}

// Engine applies decisions.
type Engine struct {
	store    queue.Store
	policies PolicySource
	log      logger.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(store queue.Store, policies PolicySource, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, policies: policies, log: log, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide validates req and applies it. Invalid requests change nothing and
// write no audit entry. Only one decision per item ever succeeds; later ones
// fail with a *domain.ConflictError carrying the current status.
func (e *Engine) Decide(ctx context.Context, req Request) (*FinalOutput, error) {
	action, status, err := validate(req)
	if err != nil {
		return nil, err
	}

	item, err := e.store.Get(ctx, req.QueueID)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.StatusPending {
		return nil, &domain.ConflictError{QueueID: item.QueueID, Current: item.Status}
	}

	pol := e.policies.Current().Policy()
	if pol.RequiresPrivilege(item.RiskLevel, action) && !req.Moderator.Privileged {
		return nil, domain.Forbidden(fmt.Sprintf("%s on %s items requires a privileged reviewer", action, item.RiskLevel))
	}

	edited := ""
	if status == domain.StatusEdited {
		edited = req.EditedOutput
	}

	decided, _, err := e.store.Decide(ctx, queue.Transition{
		QueueID:      req.QueueID,
		Status:       status,
		ModeratorID:  req.Moderator.ID,
		Notes:        req.Notes,
		EditedOutput: edited,
		At:           e.now().UTC(),
	})
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			e.log.Info("Decision lost race",
				logger.String("queue_id", req.QueueID),
				logger.String("moderator_id", req.Moderator.ID),
				logger.String("current_status", string(conflict.Current)),
			)
		}
		return nil, err
	}

	e.log.Info("Decision recorded",
		logger.String("queue_id", decided.QueueID),
		logger.String("status", string(decided.Status)),
		logger.String("moderator_id", decided.ModeratorID),
		logger.String("risk_level", string(decided.RiskLevel)),
	)

	out := Render(decided, pol)
	return &out, nil
}

func validate(req Request) (domain.Action, domain.Status, error) {
	if strings.TrimSpace(req.QueueID) == "" {
		return "", "", domain.NewValidationError("queue_id", "is required")
	}
	action, err := domain.ParseAction(strings.TrimSpace(req.Action))
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(req.Moderator.ID) == "" {
		return "", "", domain.NewValidationError("moderator_id", "is required")
	}
	if strings.TrimSpace(req.Notes) == "" {
		return "", "", domain.NewValidationError("notes", "must not be empty")
	}
	if action == domain.ActionEditOutput && strings.TrimSpace(req.EditedOutput) == "" {
		return "", "", domain.NewValidationError("edited_output", "is required for edit_output")
	}
	return action, transitions[action], nil
}

// Render computes the deliverable output of a decided item. It depends only
// on the terminal status and the policy texts.
func Render(item *domain.ModerationItem, pol *policy.Policy) FinalOutput {
	out := FinalOutput{
		QueueID:     item.QueueID,
		ResultID:    item.ResultID,
		Status:      item.Status,
		Deliverable: true,
	}
	if item.DecidedAt != nil {
		out.DecidedAt = *item.DecidedAt
	}

	switch item.Status {
	case domain.StatusApproved:
		out.Content = item.OriginalOutput
	case domain.StatusApprovedWithBuffer:
		out.Content = withBuffer(item.OriginalOutput, pol.SafetyBuffer)
	case domain.StatusEdited:
		out.Content = item.EditedOutput
	case domain.StatusSafeResponseOnly:
		out.Content = pol.SafeResponse.For(item.Series)
	case domain.StatusEscalated:
		out.Deliverable = false
		out.BlockedReason = BlockedEscalated
	default:
		out.Deliverable = false
		out.BlockedReason = BlockedPending
	}
	return out
}

func withBuffer(original string, buf policy.SafetyBuffer) string {
	if buf.Position == policy.PositionSuffix {
		return original + "\n\n" + buf.Text
	}
	return buf.Text + "\n\n" + original
}
