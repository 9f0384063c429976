// Package moderation is the service boundary: it composes the queue manager,
// decision engine, stats aggregator and policy store, and adds metrics,
// tracing and event notification around them.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/events"
	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/internal/decision"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/notify"
	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
	"github.com/jonesrussell/north-cloud/moderation/internal/scorer"
	"github.com/jonesrussell/north-cloud/moderation/internal/stats"
	"github.com/jonesrussell/north-cloud/moderation/internal/telemetry"
)

const publishTimeout = 2 * time.Second

// Deps are the collaborators a Service is built from.
type Deps struct {
	Store     queue.Store
	Releases  queue.ReleaseLog
	Policies  *policy.Store
	Notifier  notify.Notifier
	Telemetry *telemetry.Provider
	Logger    logger.Logger
	// Now overrides the clock for every component.
	Now func() time.Time
}

// Service exposes every moderation operation.
type Service struct {
	store     queue.Store
	policies  *policy.Store
	scorer    *scorer.Scorer
	manager   *queue.Manager
	engine    *decision.Engine
	stats     *stats.Aggregator
	notifier  notify.Notifier
	telemetry *telemetry.Provider
	log       logger.Logger
	now       func() time.Time
}

// New wires a Service.
func New(d Deps) *Service {
	if d.Releases == nil {
		d.Releases = queue.NewMemoryReleaseLog()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Telemetry == nil {
		d.Telemetry = telemetry.NewProvider()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	sc := scorer.New(d.Policies)
	return &Service{
		store:     d.Store,
		policies:  d.Policies,
		scorer:    sc,
		manager:   queue.NewManager(d.Store, d.Releases, sc, d.Logger, queue.WithClock(d.Now)),
		engine:    decision.NewEngine(d.Store, d.Policies, d.Logger, decision.WithClock(d.Now)),
		stats:     stats.NewAggregator(d.Store),
		notifier:  d.Notifier,
		telemetry: d.Telemetry,
		log:       d.Logger,
		now:       d.Now,
	}
}

// Intake scores an AI output and either releases it or queues it.
func (s *Service) Intake(ctx context.Context, req queue.IntakeRequest) (*queue.IntakeResult, error) {
	ctx, span := s.telemetry.StartSpan(ctx, "moderation.intake",
		attribute.String("result_id", req.ResultID),
		attribute.String("series", req.Series),
	)
	defer span.End()

	res, err := s.manager.Intake(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "intake failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("disposition", string(res.Disposition)),
		attribute.String("risk_level", string(res.Score.Level)),
		attribute.Int("risk_score", res.Score.Score),
	)
	s.telemetry.RecordIntake(ctx, string(res.Score.Level), string(res.Disposition), res.Score.Score)

	if res.Disposition == queue.DispositionAutoReleased {
		resultID := ""
		if res.Release != nil {
			resultID = res.Release.ResultID
		}
		s.publish(ctx, events.New(events.ItemReleased, resultID, "", s.now(), events.ReleasedPayload{
			Series:    req.Series,
			RiskScore: res.Score.Score,
		}))
		return res, nil
	}

	s.publish(ctx, events.New(events.ItemQueued, res.Item.ResultID, res.QueueID, res.Item.CreatedAt, events.QueuedPayload{
		Series:    res.Item.Series,
		RiskScore: res.Item.RiskScore,
		RiskLevel: string(res.Item.RiskLevel),
		Flags:     res.Item.Flags,
	}))
	return res, nil
}

// Score runs the scorer without storing anything.
func (s *Service) Score(_ context.Context, text string, sc scorer.Context) (scorer.Result, error) {
	return s.scorer.Score(text, sc)
}

// List returns queue items, newest first.
func (s *Service) List(ctx context.Context, f queue.Filter) ([]*domain.ModerationItem, error) {
	return s.manager.List(ctx, f)
}

// GetDetail returns an item with its audit trail.
func (s *Service) GetDetail(ctx context.Context, queueID string) (*queue.Detail, error) {
	return s.manager.GetDetail(ctx, queueID)
}

// Claim records that a moderator opened a pending item.
func (s *Service) Claim(ctx context.Context, queueID, moderatorID string) (*queue.Detail, error) {
	return s.manager.Claim(ctx, queueID, moderatorID)
}

// Audit returns an item's audit trail.
func (s *Service) Audit(ctx context.Context, queueID string) ([]domain.AuditEntry, error) {
	return s.manager.Audit(ctx, queueID)
}

// Decide applies a moderator decision.
func (s *Service) Decide(ctx context.Context, req decision.Request) (*decision.FinalOutput, error) {
	ctx, span := s.telemetry.StartSpan(ctx, "moderation.decide",
		attribute.String("queue_id", req.QueueID),
		attribute.String("action", req.Action),
		attribute.String("moderator_id", req.Moderator.ID),
	)
	defer span.End()

	start := time.Now()
	out, err := s.engine.Decide(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.telemetry.RecordConflict(ctx)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "decision rejected")
		return nil, err
	}

	span.SetAttributes(attribute.String("status", string(out.Status)))
	s.telemetry.RecordDecision(ctx, string(out.Status), time.Since(start))

	s.publish(ctx, events.New(events.ItemDecided, out.ResultID, out.QueueID, out.DecidedAt, events.DecidedPayload{
		Status:      string(out.Status),
		ModeratorID: req.Moderator.ID,
		Deliverable: out.Deliverable,
	}))
	return out, nil
}

// Summary aggregates queue counts.
func (s *Service) Summary(ctx context.Context, w stats.Window) (*stats.Summary, error) {
	return s.stats.Summary(ctx, w)
}

// PolicyInfo describes the active policy.
type PolicyInfo struct {
	Version           string                               `json:"version"`
	Thresholds        policy.Thresholds                    `json:"thresholds"`
	StressMarkerBump  int                                  `json:"stress_marker_bump"`
	Categories        []string                             `json:"categories"`
	PrivilegedActions map[domain.RiskLevel][]domain.Action `json:"privileged_actions"`
	Source            string                               `json:"source"`
}

// PolicyInfo returns a description of the active policy.
func (s *Service) PolicyInfo() PolicyInfo {
	p := s.policies.Current().Policy()
	cats := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		cats = append(cats, c.Name)
	}
	privileged := make(map[domain.RiskLevel][]domain.Action, len(p.PrivilegedActions))
	for level, actions := range p.PrivilegedActions {
		privileged[level] = slices.Clone(actions)
	}

	source := s.policies.Path()
	if source == "" {
		source = "builtin"
	}
	return PolicyInfo{
		Version:           p.Version,
		Thresholds:        p.Thresholds,
		StressMarkerBump:  p.StressMarkerBump,
		Categories:        cats,
		PrivilegedActions: privileged,
		Source:            source,
	}
}

// ReloadPolicy re-reads the policy file. Only privileged reviewers may
// reload; a rejected file leaves the active policy in place.
func (s *Service) ReloadPolicy(_ context.Context, by decision.Moderator) (PolicyInfo, error) {
	if !by.Privileged {
		return PolicyInfo{}, domain.Forbidden("policy reload requires a privileged reviewer")
	}

	snap, err := s.policies.ReloadFile()
	s.OnPolicyReload(snap, err)
	if errors.Is(err, policy.ErrNoPolicyFile) {
		return PolicyInfo{}, domain.NewValidationError("policy", err.Error())
	}
	if err != nil {
		return PolicyInfo{}, fmt.Errorf("reload policy: %w", err)
	}

	s.log.Info("Policy reloaded on request",
		logger.String("version", snap.Version()),
		logger.String("moderator_id", by.ID),
	)
	return s.PolicyInfo(), nil
}

// OnPolicyReload records a reload outcome. It is the watcher's callback.
func (s *Service) OnPolicyReload(_ *policy.Snapshot, err error) {
	s.telemetry.RecordPolicyReload(err == nil)
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publish sends an event without letting a notification failure or a
// cancelled request affect the committed operation.
func (s *Service) publish(ctx context.Context, event events.ModerationEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.notifier.Publish(ctx, event); err != nil {
		s.telemetry.RecordNotificationFailure(string(event.EventType))
		s.log.Warn("Event publish failed",
			logger.String("event_type", string(event.EventType)),
			logger.String("queue_id", event.QueueID),
			logger.Error(err),
		)
	}
}
