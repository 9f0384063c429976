package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// ReleaseRecord traces an output that skipped the queue.
type ReleaseRecord struct {
	ID            string           `db:"id"             json:"id"`
	ResultID      string           `db:"result_id"      json:"result_id"`
	Series        string           `db:"series"         json:"series"`
	Score         int              `db:"risk_score"     json:"risk_score"`
	Level         domain.RiskLevel `db:"risk_level"     json:"risk_level"`
	PolicyVersion string           `db:"policy_version" json:"policy_version"`
	ReleasedAt    time.Time        `db:"released_at"    json:"released_at"`
}

// ReleaseLog records auto-released outputs.
type ReleaseLog interface {
	RecordRelease(ctx context.Context, r ReleaseRecord) error
}

// MemoryReleaseLog keeps release records in memory.
type MemoryReleaseLog struct {
	mu      sync.Mutex
	records []ReleaseRecord
}

// NewMemoryReleaseLog creates an empty release log.
func NewMemoryReleaseLog() *MemoryReleaseLog {
	return &MemoryReleaseLog{}
}

// RecordRelease implements ReleaseLog.
func (l *MemoryReleaseLog) RecordRelease(_ context.Context, r ReleaseRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	return nil
}

// Records returns a copy of everything recorded.
func (l *MemoryReleaseLog) Records() []ReleaseRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.records)
}
