package database

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
)

// ReleaseLog records auto-released outputs in auto_release_log.
type ReleaseLog struct {
	db *sqlx.DB
}

var _ queue.ReleaseLog = (*ReleaseLog)(nil)

// NewReleaseLog creates a ReleaseLog over db.
func NewReleaseLog(db *sqlx.DB) *ReleaseLog {
	return &ReleaseLog{db: db}
}

// RecordRelease implements queue.ReleaseLog.
func (l *ReleaseLog) RecordRelease(ctx context.Context, r queue.ReleaseRecord) error {
	const query = `
		INSERT INTO auto_release_log (id, result_id, series, risk_score, risk_level, policy_version, released_at)
		VALUES (:id, :result_id, :series, :risk_score, :risk_level, :policy_version, :released_at)
	`

	r.ReleasedAt = r.ReleasedAt.UTC()
	if _, err := l.db.NamedExecContext(ctx, query, r); err != nil {
		return translate("record release", err)
	}
	return nil
}
