// Package stats aggregates queue counts for the ops dashboard.
package stats

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
)

// Source returns grouped counts from one consistent read.
type Source interface {
	Counts(ctx context.Context, since time.Time) ([]queue.Count, error)
}

// Window restricts a summary to items created at or after Since. A zero
// Since covers everything.
type Window struct {
	Since time.Time
}

// Summary is a point-in-time view of the queue.
type Summary struct {
	PendingCount      int                      `json:"pending_count"`
	ResolvedCount     int                      `json:"resolved_count"`
	Total             int                      `json:"total"`
	CountsByRiskLevel map[domain.RiskLevel]int `json:"counts_by_risk_level"` // levels with no items are omitted
	CountsByStatus    map[domain.Status]int    `json:"counts_by_status"`
	Since             *time.Time               `json:"since,omitempty"`
}

// Aggregator builds summaries.
type Aggregator struct {
	source Source
}

// NewAggregator creates an Aggregator over source.
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Summary groups every persisted item in the window. All totals come from
// the same set of counts, so they always agree with each other.
func (a *Aggregator) Summary(ctx context.Context, w Window) (*Summary, error) {
	counts, err := a.source.Counts(ctx, w.Since)
	if err != nil {
		return nil, err
	}

	s := Fold(counts)
	if !w.Since.IsZero() {
		since := w.Since.UTC()
		s.Since = &since
	}
	return s, nil
}

// Fold reduces grouped counts into a Summary.
func Fold(counts []queue.Count) *Summary {
	s := &Summary{
		CountsByRiskLevel: make(map[domain.RiskLevel]int),
		CountsByStatus:    make(map[domain.Status]int),
	}
	for _, c := range counts {
		if c.N <= 0 {
			continue
		}
		s.CountsByRiskLevel[c.RiskLevel] += c.N
		s.CountsByStatus[c.Status] += c.N
		s.Total += c.N
		if c.Status == domain.StatusPending {
			s.PendingCount += c.N
		} else {
			s.ResolvedCount += c.N
		}
	}
	return s
}
