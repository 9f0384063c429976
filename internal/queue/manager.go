package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/internal/audit"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/scorer"
)

// Disposition is what Intake did with an output.
type Disposition string

const (
	DispositionStored       Disposition = "stored"
	DispositionAutoReleased Disposition = "auto_released"
)

// Scorer scores intake text.
type Scorer interface {
	Score(text string, sc scorer.Context) (scorer.Result, error)
}

// IntakeRequest is one AI output submitted for triage.
type IntakeRequest struct {
	ResultID     string   `json:"result_id"`
	Series       string   `json:"series"`
	Text         string   `json:"text"`
	StressMarker bool     `json:"stress_marker"`
	Hints        []string `json:"hints,omitempty"`
}

// IntakeResult reports the routing decision. Content is set only for
// auto-released outputs; Item only for stored ones.
type IntakeResult struct {
	Disposition Disposition            `json:"disposition"`
	QueueID     string                 `json:"queue_id,omitempty"`
	Content     string                 `json:"content,omitempty"`
	Score       scorer.Result          `json:"score"`
	Item        *domain.ModerationItem `json:"item,omitempty"`
	Release     *ReleaseRecord         `json:"-"`
}

// Detail is an item with its full audit trail.
type Detail struct {
	Item  *domain.ModerationItem `json:"item"`
	Audit []domain.AuditEntry    `json:"audit_log"`
}

// Manager routes intakes and serves moderator reads.
type Manager struct {
	store    Store
	releases ReleaseLog
	scorer   Scorer
	log      logger.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(store Store, releases ReleaseLog, sc Scorer, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		releases: releases,
		scorer:   sc,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Intake scores the output. Level 1 outputs are released immediately and
// only traced in the release log; anything riskier is stored pending review.
func (m *Manager) Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	res, err := m.scorer.Score(req.Text, scorer.Context{
		Series:       req.Series,
		StressMarker: req.StressMarker,
		Hints:        req.Hints,
	})
	if err != nil {
		return nil, err
	}

	resultID := strings.TrimSpace(req.ResultID)
	if resultID == "" {
		resultID = uuid.NewString()
	}
	now := m.now().UTC()

	if res.Level == domain.RiskLevel1 {
		rel := ReleaseRecord{
			ID:            uuid.NewString(),
			ResultID:      resultID,
			Series:        req.Series,
			Score:         res.Score,
			Level:         res.Level,
			PolicyVersion: res.PolicyVersion,
			ReleasedAt:    now,
		}
		m.recordRelease(ctx, rel)
		return &IntakeResult{
			Disposition: DispositionAutoReleased,
			Content:     req.Text,
			Score:       res,
			Release:     &rel,
		}, nil
	}

	item := &domain.ModerationItem{
		QueueID:          uuid.NewString(),
		ResultID:         resultID,
		Series:           req.Series,
		OriginalOutput:   req.Text,
		RiskScore:        res.Score,
		RiskLevel:        res.Level,
		DetectedKeywords: res.DetectedKeywords,
		Flags:            res.Flags,
		Status:           domain.StatusPending,
		PolicyVersion:    res.PolicyVersion,
		StressMarker:     req.StressMarker,
		CreatedAt:        now,
	}
	if err := m.store.Create(ctx, item, audit.Created(item.QueueID, now, item.RiskLevel)); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", resultID, err)
	}

	m.log.Info("Output queued for review",
		logger.String("queue_id", item.QueueID),
		logger.String("result_id", resultID),
		logger.String("risk_level", string(item.RiskLevel)),
		logger.Int("risk_score", item.RiskScore),
		logger.Strings("flags", item.Flags),
	)

	return &IntakeResult{
		Disposition: DispositionStored,
		QueueID:     item.QueueID,
		Score:       res,
		Item:        item,
	}, nil
}

// recordRelease traces an auto-release. A failing release log never blocks
// delivery.
func (m *Manager) recordRelease(ctx context.Context, rel ReleaseRecord) {
	fields := []logger.Field{
		logger.String("release_id", rel.ID),
		logger.String("result_id", rel.ResultID),
		logger.String("series", rel.Series),
		logger.Int("risk_score", rel.Score),
		logger.String("policy_version", rel.PolicyVersion),
	}
	if err := m.releases.RecordRelease(ctx, rel); err != nil {
		m.log.Warn("Release log write failed", append(fields, logger.Error(err))...)
		return
	}
	m.log.Info("Output auto-released", fields...)
}

// List returns queue items matching f, newest first.
func (m *Manager) List(ctx context.Context, f Filter) ([]*domain.ModerationItem, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.RiskLevel != "" && !f.RiskLevel.Valid() {
		return nil, domain.NewValidationError("risk_level", fmt.Sprintf("unknown risk level %q", f.RiskLevel))
	}
	return m.store.List(ctx, f)
}

// Claim fetches an item for review. It does not lock the item; a claimed
// entry is added to the trail while the item is pending.
func (m *Manager) Claim(ctx context.Context, queueID, moderatorID string) (*Detail, error) {
	if strings.TrimSpace(moderatorID) == "" {
		return nil, domain.NewValidationError("moderator_id", "is required")
	}
	item, entries, err := m.store.Claim(ctx, queueID, moderatorID, m.now().UTC())
	if err != nil {
		return nil, err
	}
	return &Detail{Item: item, Audit: entries}, nil
}

// GetDetail returns an item with its audit trail.
func (m *Manager) GetDetail(ctx context.Context, queueID string) (*Detail, error) {
	item, entries, err := m.store.GetWithAudit(ctx, queueID)
	if err != nil {
		return nil, err
	}
	return &Detail{Item: item, Audit: entries}, nil
}

// Audit returns an item's audit trail.
func (m *Manager) Audit(ctx context.Context, queueID string) ([]domain.AuditEntry, error) {
	return m.store.ReadAudit(ctx, queueID)
}
