// Package domain defines the moderation vocabulary shared by every layer:
// queue items, audit entries, decision actions and error kinds.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// RiskLevel is the risk tier derived from a risk score.
type RiskLevel string

const (
	RiskLevel1 RiskLevel = "level_1" // routine, auto-released
	RiskLevel2 RiskLevel = "level_2" // sensitive, queued
	RiskLevel3 RiskLevel = "level_3" // critical, queued
)

// RiskLevels lists every level in ascending order.
var RiskLevels = []RiskLevel{RiskLevel1, RiskLevel2, RiskLevel3}

// Rank orders levels: level_1 < level_2 < level_3. Unknown levels rank 0.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevel1:
		return 1
	case RiskLevel2:
		return 2
	case RiskLevel3:
		return 3
	default:
		return 0
	}
}

// Valid reports whether l is a known level.
func (l RiskLevel) Valid() bool {
	return l.Rank() > 0
}

// ParseRiskLevel validates a risk level filter value.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(s)
	if !l.Valid() {
		return "", NewValidationError("risk_level", fmt.Sprintf("unknown risk level %q", s))
	}
	return l, nil
}

// Status is the moderation state of a queued item.
type Status string

const (
	StatusPending            Status = "pending"
	StatusApproved           Status = "approved"
	StatusApprovedWithBuffer Status = "approved_with_buffer"
	StatusEdited             Status = "edited"
	StatusSafeResponseOnly   Status = "safe_response_only"
	StatusEscalated          Status = "escalated"
)

// Statuses lists every status, pending first.
var Statuses = []Status{
	StatusPending,
	StatusApproved,
	StatusApprovedWithBuffer,
	StatusEdited,
	StatusSafeResponseOnly,
	StatusEscalated,
}

// IsTerminal reports whether s is a decided status.
func (s Status) IsTerminal() bool {
	return s != StatusPending && slices.Contains(Statuses, s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// ParseStatus validates a status filter value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// DetectedKeywords maps a lexicon category to the phrases found for it, in
// the order they were first found.
type DetectedKeywords map[string][]string

// Value stores the map as JSONB.
func (k DetectedKeywords) Value() (driver.Value, error) {
	if k == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(k)
}

// Scan reads a JSONB column.
func (k *DetectedKeywords) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*k = DetectedKeywords{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("detected_keywords: unsupported column type")
	}

	out := DetectedKeywords{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("detected_keywords: %w", err)
	}
	*k = out
	return nil
}

// Clone returns a deep copy.
func (k DetectedKeywords) Clone() DetectedKeywords {
	out := make(DetectedKeywords, len(k))
	for cat, phrases := range k {
		out[cat] = slices.Clone(phrases)
	}
	return out
}

// ModerationItem is one queued AI output and its review state.
type ModerationItem struct {
	QueueID          string           `db:"queue_id"          json:"queue_id"`
	ResultID         string           `db:"result_id"         json:"result_id"`
	Series           string           `db:"series"            json:"series"`
	OriginalOutput   string           `db:"original_output"   json:"original_output"`
	RiskScore        int              `db:"risk_score"        json:"risk_score"` // 0-100
	RiskLevel        RiskLevel        `db:"risk_level"        json:"risk_level"`
	DetectedKeywords DetectedKeywords `db:"detected_keywords" json:"detected_keywords"`
	Flags            []string         `db:"-"                 json:"flags"` // sorted, unique
	Status           Status           `db:"status"            json:"status"`
	ModeratorID      string           `db:"moderator_id"      json:"moderator_id,omitempty"`
	ModeratorNotes   string           `db:"moderator_notes"   json:"moderator_notes,omitempty"`
	EditedOutput     string           `db:"edited_output"     json:"edited_output,omitempty"` // only when edited
	PolicyVersion    string           `db:"policy_version"    json:"policy_version"`
	StressMarker     bool             `db:"stress_marker"     json:"stress_marker"`
	CreatedAt        time.Time        `db:"created_at"        json:"created_at"`
	DecidedAt        *time.Time       `db:"decided_at"        json:"decided_at,omitempty"`
}

// Clone returns a deep copy so stores can hand items out without sharing
// mutable state.
func (i *ModerationItem) Clone() *ModerationItem {
	out := *i
	out.DetectedKeywords = i.DetectedKeywords.Clone()
	out.Flags = slices.Clone(i.Flags)
	if i.DecidedAt != nil {
		t := *i.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}

// CheckConsistency verifies that decision fields are set exactly when the
// item is terminal.
func (i *ModerationItem) CheckConsistency() error {
	decided := i.DecidedAt != nil || i.ModeratorID != "" || i.ModeratorNotes != ""
	switch {
	case i.Status == StatusPending && decided:
		return fmt.Errorf("item %s: pending item carries decision fields", i.QueueID)
	case i.Status.IsTerminal() && (i.DecidedAt == nil || i.ModeratorID == "" || i.ModeratorNotes == ""):
		return fmt.Errorf("item %s: decided item is missing decision fields", i.QueueID)
	case !i.Status.Valid():
		return fmt.Errorf("item %s: unknown status %q", i.QueueID, i.Status)
	case (i.Status == StatusEdited) != (i.EditedOutput != ""):
		return fmt.Errorf("item %s: edited output must be set only for edited items", i.QueueID)
	}
	return nil
}
