// Package audit defines the append-only audit log contract for moderation
// items. Stores implement Log; nothing in the contract updates or deletes an
// entry.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// Log is an append-only audit trail keyed by queue id.
type Log interface {
	// AppendAudit stores e after the item's last entry and returns it with
	// Seq and Timestamp as stored.
	AppendAudit(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error)
	// ReadAudit returns the item's entries in append order.
	ReadAudit(ctx context.Context, queueID string) ([]domain.AuditEntry, error)
}

// Created is the entry written when an item enters the queue.
func Created(queueID string, at time.Time, level domain.RiskLevel) domain.AuditEntry {
	return domain.AuditEntry{
		QueueID:   queueID,
		Timestamp: at,
		Action:    domain.AuditCreated,
		Actor:     domain.SystemActor,
		Notes:     "queued for review at " + string(level),
		Status:    domain.StatusPending,
	}
}

// Decision is the entry written by a committed decision.
func Decision(queueID, moderatorID, notes string, at time.Time, status domain.Status) domain.AuditEntry {
	return domain.AuditEntry{
		QueueID:   queueID,
		Timestamp: at,
		Action:    domain.AuditDecision,
		Actor:     moderatorID,
		Notes:     notes,
		Status:    status,
	}
}

// Claimed is the entry written when a moderator opens a pending item.
func Claimed(queueID, moderatorID string, at time.Time) domain.AuditEntry {
	return domain.AuditEntry{
		QueueID:   queueID,
		Timestamp: at,
		Action:    domain.AuditClaimed,
		Actor:     moderatorID,
		Status:    domain.StatusPending,
	}
}

// Next positions e after entries: the next sequence number and a timestamp
// no earlier than the last entry's.
func Next(entries []domain.AuditEntry, e domain.AuditEntry) domain.AuditEntry {
	e.Seq = len(entries) + 1
	if n := len(entries); n > 0 {
		e.Timestamp = NotBefore(e.Timestamp, entries[n-1].Timestamp)
	}
	return e
}

// NotBefore returns t, or floor when t is earlier.
func NotBefore(t, floor time.Time) time.Time {
	if t.Before(floor) {
		return floor
	}
	return t
}

// Validate checks an item's trail: contiguous sequence from 1, one queue id,
// non-decreasing timestamps, a leading created entry and at most one
// decision, which must be last.
func Validate(entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if entries[0].Action != domain.AuditCreated {
		return fmt.Errorf("audit: first entry is %q, want created", entries[0].Action)
	}

	decisions := 0
	for i, e := range entries {
		if e.Seq != i+1 {
			return fmt.Errorf("audit: entry %d has seq %d", i, e.Seq)
		}
		if e.QueueID != entries[0].QueueID {
			return fmt.Errorf("audit: entry %d belongs to %s", i, e.QueueID)
		}
		if i > 0 && e.Timestamp.Before(entries[i-1].Timestamp) {
			return fmt.Errorf("audit: entry %d timestamp goes backwards", i)
		}
		if e.Action == domain.AuditDecision {
			decisions++
			if decisions > 1 {
				return fmt.Errorf("audit: more than one decision for %s", e.QueueID)
			}
			if i != len(entries)-1 {
				return fmt.Errorf("audit: decision for %s is not the last entry", e.QueueID)
			}
		}
	}
	return nil
}

// CheckAgreement verifies the item's status matches its own trail: a terminal
// item's last entry is its decision with the same status and timestamp, a
// pending item has no decision.
func CheckAgreement(item *domain.ModerationItem, entries []domain.AuditEntry) error {
	if err := Validate(entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("audit: item %s has no audit trail", item.QueueID)
	}

	last := entries[len(entries)-1]
	if item.Status == domain.StatusPending {
		if last.Action == domain.AuditDecision {
			return fmt.Errorf("audit: pending item %s has a decision entry", item.QueueID)
		}
		return nil
	}

	if last.Action != domain.AuditDecision {
		return fmt.Errorf("audit: decided item %s has no decision entry", item.QueueID)
	}
	if last.Status != item.Status {
		return fmt.Errorf("audit: item %s status %s, decision entry says %s", item.QueueID, item.Status, last.Status)
	}
	if item.DecidedAt == nil || !item.DecidedAt.Equal(last.Timestamp) {
		return fmt.Errorf("audit: item %s decided_at does not match its decision entry", item.QueueID)
	}
	return nil
}
