// Package scorer computes deterministic risk scores for AI-generated text
// against a compiled policy snapshot.
package scorer

import (
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
)

const maxScore = 100

// Context is caller-supplied information the lexicon cannot see.
type Context struct {
	Series       string
	StressMarker bool
	// Hints name categories the caller already considers sensitive. A hint
	// raises the category's flags without changing the score.
	Hints []string
}

// Result is the outcome of scoring one text.
type Result struct {
	Score            int                     `json:"risk_score"`
	Level            domain.RiskLevel        `json:"risk_level"`
	DetectedKeywords domain.DetectedKeywords `json:"detected_keywords"`
	// Categories lists categories with hits in the order they were first hit.
	Categories    []string `json:"categories"`
	Flags         []string `json:"flags"`
	PolicyVersion string   `json:"policy_version"`
}

// SnapshotSource supplies the active policy snapshot.
type SnapshotSource interface {
	Current() *policy.Snapshot
}

// Scorer scores text against whatever snapshot is active when Score is
// called.
type Scorer struct {
	source SnapshotSource
}

// New creates a Scorer reading snapshots from source.
func New(source SnapshotSource) *Scorer {
	return &Scorer{source: source}
}

// Score loads the active snapshot once and scores text against it.
func (s *Scorer) Score(text string, sc Context) (Result, error) {
	return Score(s.source.Current(), text, sc)
}

// Score is the pure scoring function. Identical (snapshot, text, context)
// inputs always yield identical results.
func Score(snap *policy.Snapshot, text string, sc Context) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, domain.NewValidationError("text", "must not be empty")
	}

	p := snap.Policy()
	res := Result{
		DetectedKeywords: domain.DetectedKeywords{},
		Categories:       []string{},
		PolicyVersion:    snap.Version(),
	}

	hitCategories := make([]bool, len(p.Categories))
	total := 0
	for _, hit := range snap.Match(text) {
		name := p.Categories[hit.Category].Name
		if !hitCategories[hit.Category] {
			hitCategories[hit.Category] = true
			res.Categories = append(res.Categories, name)
		}
		res.DetectedKeywords[name] = append(res.DetectedKeywords[name], hit.Phrase)
		total += hit.Weight
	}

	if sc.StressMarker {
		total += p.StressMarkerBump
	}
	res.Score = clamp(total)
	res.Level = p.Thresholds.Level(res.Score)

	flags := make([]string, 0)
	for i, c := range p.Categories {
		if hitCategories[i] || slices.Contains(sc.Hints, c.Name) {
			flags = append(flags, c.Flags...)
		}
	}
	slices.Sort(flags)
	res.Flags = slices.Compact(flags)

	return res, nil
}

func clamp(score int) int {
	return min(max(score, 0), maxScore)
}
