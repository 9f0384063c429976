package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/moderation/internal/audit"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
)

const itemColumns = `queue_id, result_id, series, original_output, risk_score, risk_level,
	detected_keywords, flags, status, moderator_id, moderator_notes, edited_output,
	policy_version, stress_marker, created_at, decided_at`

const auditColumns = `seq, queue_id, created_at, action, actor, notes, status`

// Store is the PostgreSQL queue.Store. Every write that touches an item's
// trail locks the item row first, so appends and decisions on one item are
// serialized by the database.
type Store struct {
	db *sqlx.DB
}

var _ queue.Store = (*Store)(nil)

// NewStore creates a Store over db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.ModerationItem, error) {
	var (
		item         domain.ModerationItem
		moderatorID  sql.NullString
		notes        sql.NullString
		editedOutput sql.NullString
		decidedAt    sql.NullTime
	)
	err := row.Scan(
		&item.QueueID,
		&item.ResultID,
		&item.Series,
		&item.OriginalOutput,
		&item.RiskScore,
		&item.RiskLevel,
		&item.DetectedKeywords,
		pq.Array(&item.Flags),
		&item.Status,
		&moderatorID,
		&notes,
		&editedOutput,
		&item.PolicyVersion,
		&item.StressMarker,
		&item.CreatedAt,
		&decidedAt,
	)
	if err != nil {
		return nil, err
	}

	item.ModeratorID = moderatorID.String
	item.ModeratorNotes = notes.String
	item.EditedOutput = editedOutput.String
	if decidedAt.Valid {
		t := decidedAt.Time
		item.DecidedAt = &t
	}
	if item.Flags == nil {
		item.Flags = []string{}
	}
	return &item, nil
}

// withTx runs fn in a transaction and commits when fn succeeds.
func (s *Store) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return translate("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return translate("commit transaction", err)
	}
	return nil
}

// Create implements queue.Store.
func (s *Store) Create(ctx context.Context, item *domain.ModerationItem, created domain.AuditEntry) error {
	const query = `
		INSERT INTO moderation_items (
			queue_id, result_id, series, original_output, risk_score, risk_level,
			detected_keywords, flags, status, policy_version, stress_marker, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	flags := item.Flags
	if flags == nil {
		flags = []string{}
	}

	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			item.QueueID,
			item.ResultID,
			item.Series,
			item.OriginalOutput,
			item.RiskScore,
			string(item.RiskLevel),
			item.DetectedKeywords,
			pq.Array(flags),
			string(item.Status),
			item.PolicyVersion,
			item.StressMarker,
			item.CreatedAt.UTC(),
		)
		if err != nil {
			return translate("insert moderation item", err)
		}

		created.Seq = 1
		return insertAudit(ctx, tx, created)
	})
}

// Get implements queue.Store.
func (s *Store) Get(ctx context.Context, queueID string) (*domain.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items WHERE queue_id = $1`

	item, err := scanItem(s.db.QueryRowxContext(ctx, query, queueID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(queueID)
	}
	if err != nil {
		return nil, translate("get moderation item", err)
	}
	return item, nil
}

// GetWithAudit implements queue.Store. Both reads share one repeatable-read
// snapshot.
func (s *Store) GetWithAudit(ctx context.Context, queueID string) (*domain.ModerationItem, []domain.AuditEntry, error) {
	var (
		item    *domain.ModerationItem
		entries []domain.AuditEntry
	)
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := s.withTx(ctx, opts, func(tx *sqlx.Tx) error {
		query := `SELECT ` + itemColumns + ` FROM moderation_items WHERE queue_id = $1`
		var err error
		item, err = scanItem(tx.QueryRowxContext(ctx, query, queueID))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(queueID)
		}
		if err != nil {
			return translate("get moderation item", err)
		}

		entries, err = readAudit(ctx, tx, queueID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return item, entries, nil
}

// List implements queue.Store.
func (s *Store) List(ctx context.Context, f queue.Filter) ([]*domain.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items WHERE 1=1`
	args := []any{}
	argPos := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(f.Status))
		argPos++
	}
	if f.RiskLevel != "" {
		query += fmt.Sprintf(" AND risk_level = $%d", argPos)
		args = append(args, string(f.RiskLevel))
	}
	query += " ORDER BY created_at DESC, queue_id DESC"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, translate("list moderation items", err)
	}
	defer rows.Close()

	items := make([]*domain.ModerationItem, 0)
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			return nil, translate("scan moderation item", scanErr)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, translate("iterate moderation items", err)
	}
	return items, nil
}

// AppendAudit implements audit.Log.
func (s *Store) AppendAudit(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	var stored domain.AuditEntry
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := lockStatus(ctx, tx, e.QueueID); err != nil {
			return err
		}
		var err error
		stored, err = appendLocked(ctx, tx, e)
		return err
	})
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return stored, nil
}

// ReadAudit implements audit.Log.
func (s *Store) ReadAudit(ctx context.Context, queueID string) ([]domain.AuditEntry, error) {
	return readAudit(ctx, s.db, queueID)
}

// Claim implements queue.Store.
func (s *Store) Claim(ctx context.Context, queueID, moderatorID string, at time.Time) (*domain.ModerationItem, []domain.AuditEntry, error) {
	var (
		item    *domain.ModerationItem
		entries []domain.AuditEntry
	)
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var err error
		item, err = lockItem(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if item.Status == domain.StatusPending {
			if _, err = appendLocked(ctx, tx, audit.Claimed(queueID, moderatorID, at)); err != nil {
				return err
			}
		}
		entries, err = readAudit(ctx, tx, queueID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return item, entries, nil
}

// Decide implements queue.Store.
func (s *Store) Decide(ctx context.Context, t queue.Transition) (*domain.ModerationItem, domain.AuditEntry, error) {
	const update = `
		UPDATE moderation_items
		SET status = $2, moderator_id = $3, moderator_notes = $4, edited_output = $5, decided_at = $6
		WHERE queue_id = $1 AND status = 'pending'
	`

	var (
		item  *domain.ModerationItem
		entry domain.AuditEntry
	)
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var err error
		item, err = lockItem(ctx, tx, t.QueueID)
		if err != nil {
			return err
		}
		if item.Status != domain.StatusPending {
			return &domain.ConflictError{QueueID: t.QueueID, Current: item.Status}
		}

		seq, last, err := lastEntry(ctx, tx, t.QueueID)
		if err != nil {
			return err
		}
		entry = audit.Decision(t.QueueID, t.ModeratorID, t.Notes, t.At.UTC(), t.Status)
		entry.Seq = seq + 1
		if seq > 0 {
			entry.Timestamp = audit.NotBefore(entry.Timestamp, last)
		}

		edited := sql.NullString{String: t.EditedOutput, Valid: t.Status == domain.StatusEdited}
		res, err := tx.ExecContext(ctx, update,
			t.QueueID, string(t.Status), t.ModeratorID, t.Notes, edited, entry.Timestamp)
		if err != nil {
			return translate("update moderation item", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return translate("update moderation item", err)
		}
		if n != 1 {
			return &domain.ConflictError{QueueID: t.QueueID, Current: item.Status}
		}

		if err = insertAudit(ctx, tx, entry); err != nil {
			return err
		}

		decidedAt := entry.Timestamp
		item.Status = t.Status
		item.ModeratorID = t.ModeratorID
		item.ModeratorNotes = t.Notes
		if edited.Valid {
			item.EditedOutput = edited.String
		}
		item.DecidedAt = &decidedAt
		return nil
	})
	if err != nil {
		return nil, domain.AuditEntry{}, err
	}
	return item, entry, nil
}

// Counts implements queue.Store with a single grouped scan.
func (s *Store) Counts(ctx context.Context, since time.Time) ([]queue.Count, error) {
	const query = `
		SELECT risk_level, status, COUNT(*) AS n
		FROM moderation_items
		WHERE $1::timestamptz IS NULL OR created_at >= $1
		GROUP BY risk_level, status
	`

	arg := sql.NullTime{Time: since.UTC(), Valid: !since.IsZero()}
	var counts []queue.Count
	if err := s.db.SelectContext(ctx, &counts, query, arg); err != nil {
		return nil, translate("count moderation items", err)
	}
	return counts, nil
}

// Ping implements queue.Store.
func (s *Store) Ping(ctx context.Context) error {
	return translate("ping database", s.db.PingContext(ctx))
}

// lockItem reads an item and holds its row lock until the transaction ends.
func lockItem(ctx context.Context, tx *sqlx.Tx, queueID string) (*domain.ModerationItem, error) {
	query := `SELECT ` + itemColumns + ` FROM moderation_items WHERE queue_id = $1 FOR UPDATE`

	item, err := scanItem(tx.QueryRowxContext(ctx, query, queueID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(queueID)
	}
	if err != nil {
		return nil, translate("lock moderation item", err)
	}
	return item, nil
}

func lockStatus(ctx context.Context, tx *sqlx.Tx, queueID string) (domain.Status, error) {
	const query = `SELECT status FROM moderation_items WHERE queue_id = $1 FOR UPDATE`

	var status domain.Status
	err := tx.QueryRowxContext(ctx, query, queueID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NotFound(queueID)
	}
	if err != nil {
		return "", translate("lock moderation item", err)
	}
	return status, nil
}

// lastEntry returns the newest entry's sequence number and timestamp, or
// zero values for an empty trail.
func lastEntry(ctx context.Context, tx *sqlx.Tx, queueID string) (int, time.Time, error) {
	const query = `
		SELECT seq, created_at FROM moderation_audit_logs
		WHERE queue_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`

	var (
		seq int
		at  time.Time
	)
	err := tx.QueryRowxContext(ctx, query, queueID).Scan(&seq, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, translate("read last audit entry", err)
	}
	return seq, at, nil
}

// appendLocked appends e after the trail's last entry. The caller holds the
// item row lock.
func appendLocked(ctx context.Context, tx *sqlx.Tx, e domain.AuditEntry) (domain.AuditEntry, error) {
	seq, last, err := lastEntry(ctx, tx, e.QueueID)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Seq = seq + 1
	if seq > 0 {
		e.Timestamp = audit.NotBefore(e.Timestamp, last)
	}

	if err = insertAudit(ctx, tx, e); err != nil {
		return domain.AuditEntry{}, err
	}
	return e, nil
}

func insertAudit(ctx context.Context, tx *sqlx.Tx, e domain.AuditEntry) error {
	const query = `
		INSERT INTO moderation_audit_logs (queue_id, seq, created_at, action, actor, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.ExecContext(ctx, query,
		e.QueueID, e.Seq, e.Timestamp.UTC(), string(e.Action), e.Actor, e.Notes, string(e.Status))
	if err != nil {
		return translate("insert audit entry", err)
	}
	return nil
}

func readAudit(ctx context.Context, q sqlx.QueryerContext, queueID string) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM moderation_audit_logs WHERE queue_id = $1 ORDER BY seq`

	var entries []domain.AuditEntry
	if err := sqlx.SelectContext(ctx, q, &entries, query, queueID); err != nil {
		return nil, translate("read audit log", err)
	}
	// Every stored item has at least its created entry.
	if len(entries) == 0 {
		return nil, domain.NotFound(queueID)
	}
	return entries, nil
}
