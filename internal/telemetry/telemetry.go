// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for
// the moderation service.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "moderation"
	namespace   = "moderation"
)

// Metrics holds all moderation Prometheus metrics
type Metrics struct {
	IntakeTotal       *prometheus.CounterVec
	ScoreDistribution prometheus.Histogram

	DecisionsTotal    *prometheus.CounterVec
	DecisionConflicts prometheus.Counter
	DecideDuration    prometheus.Histogram

	PolicyReloads       *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider creates a provider with its own registry, so several providers
// can coexist in one process.
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		registry: reg,
	}
}

// Registry returns the registry backing /metrics.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}

	m.IntakeTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "intake_total",
		Help:      "AI outputs received, by risk level and disposition",
	}, []string{"risk_level", "disposition"})

	m.ScoreDistribution = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "score_distribution",
		Help:      "Risk scores assigned at intake",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	m.DecisionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Committed moderator decisions, by resulting status",
	}, []string{"status"})

	m.DecisionConflicts = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decision_conflicts_total",
		Help:      "Decision attempts rejected because the item was already decided",
	})

	m.DecideDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "decide_duration_seconds",
		Help:      "Time to apply a decision",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	})

	m.PolicyReloads = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "policy_reloads_total",
		Help:      "Policy reload attempts, by result",
	}, []string{"result"})

	m.NotificationsFailed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_failed_total",
		Help:      "Events that could not be published",
	}, []string{"event_type"})

	return m
}

// RecordIntake records one routed intake.
func (p *Provider) RecordIntake(_ context.Context, riskLevel, disposition string, score int) {
	p.Metrics.IntakeTotal.WithLabelValues(riskLevel, disposition).Inc()
	p.Metrics.ScoreDistribution.Observe(float64(score))
}

// RecordDecision records a committed decision and its latency.
func (p *Provider) RecordDecision(_ context.Context, status string, duration time.Duration) {
	p.Metrics.DecisionsTotal.WithLabelValues(status).Inc()
	p.Metrics.DecideDuration.Observe(duration.Seconds())
}

// RecordConflict records a rejected second decision.
func (p *Provider) RecordConflict(_ context.Context) {
	p.Metrics.DecisionConflicts.Inc()
}

// RecordPolicyReload records a reload outcome.
func (p *Provider) RecordPolicyReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	p.Metrics.PolicyReloads.WithLabelValues(result).Inc()
}

// RecordNotificationFailure records an event that was dropped.
func (p *Provider) RecordNotificationFailure(eventType string) {
	p.Metrics.NotificationsFailed.WithLabelValues(eventType).Inc()
}

// StartSpan starts a new trace span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
