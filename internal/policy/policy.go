// Package policy holds the versioned risk lexicon and thresholds, compiled
// into immutable snapshots that are swapped atomically on reload.
package policy

import (
	"fmt"
	"slices"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// Buffer positions.
const (
	PositionPrefix = "prefix"
	PositionSuffix = "suffix"
)

const (
	maxWeight = 100
	maxScore  = 100
)

// Policy is the declarative risk configuration.
type Policy struct {
	Version           string                               `json:"version"            yaml:"version"`
	Categories        []Category                           `json:"categories"         yaml:"categories"` // ordered
	Thresholds        Thresholds                           `json:"thresholds"         yaml:"thresholds"`
	StressMarkerBump  int                                  `json:"stress_marker_bump" yaml:"stress_marker_bump"`
	SafetyBuffer      SafetyBuffer                         `json:"safety_buffer"      yaml:"safety_buffer"`
	SafeResponse      SafeResponse                         `json:"safe_response"      yaml:"safe_response"`
	PrivilegedActions map[domain.RiskLevel][]domain.Action `json:"privileged_actions" yaml:"privileged_actions"`
}

// Category is a named set of weighted phrases and the flags a hit raises.
type Category struct {
	Name    string   `json:"name"    yaml:"name"`
	Flags   []string `json:"flags"   yaml:"flags"`
	Phrases []Phrase `json:"phrases" yaml:"phrases"`
}

// Phrase is one lexicon entry.
type Phrase struct {
	Text   string `json:"text"   yaml:"text"`
	Weight int    `json:"weight" yaml:"weight"` // 1-100
}

// Thresholds split scores into levels: score < Sensitive is level_1,
// score < Critical is level_2, anything higher is level_3.
type Thresholds struct {
	Sensitive int `json:"sensitive" yaml:"sensitive"`
	Critical  int `json:"critical"  yaml:"critical"`
}

// SafetyBuffer is the cautionary notice added by approve_with_buffer.
type SafetyBuffer struct {
	Text     string `json:"text"     yaml:"text"`
	Position string `json:"position" yaml:"position"`
}

// SafeResponse is the fallback text substituted by safe_response_only.
type SafeResponse struct {
	Default  string            `json:"default"   yaml:"default"`
	BySeries map[string]string `json:"by_series" yaml:"by_series"`
}

// For returns the series-specific safe response, falling back to Default.
func (s SafeResponse) For(series string) string {
	if text, ok := s.BySeries[series]; ok && text != "" {
		return text
	}
	return s.Default
}

// Level maps a score to its risk level. Boundary values belong to the higher
// level.
func (t Thresholds) Level(score int) domain.RiskLevel {
	switch {
	case score >= t.Critical:
		return domain.RiskLevel3
	case score >= t.Sensitive:
		return domain.RiskLevel2
	default:
		return domain.RiskLevel1
	}
}

// RequiresPrivilege reports whether action on an item at level needs a
// privileged reviewer.
func (p *Policy) RequiresPrivilege(level domain.RiskLevel, action domain.Action) bool {
	return slices.Contains(p.PrivilegedActions[level], action)
}

// Validate checks the policy is internally consistent.
func (p *Policy) Validate() error {
	if p.Version == "" {
		return invalid("version", "is required")
	}
	if len(p.Categories) == 0 {
		return invalid("categories", "at least one category is required")
	}

	seen := make(map[string]struct{}, len(p.Categories))
	for i, c := range p.Categories {
		field := fmt.Sprintf("categories[%d]", i)
		if c.Name == "" {
			return invalid(field+".name", "is required")
		}
		if _, dup := seen[c.Name]; dup {
			return invalid(field+".name", fmt.Sprintf("duplicate category %q", c.Name))
		}
		seen[c.Name] = struct{}{}

		if len(c.Phrases) == 0 {
			return invalid(field+".phrases", "at least one phrase is required")
		}
		for j, ph := range c.Phrases {
			pf := fmt.Sprintf("%s.phrases[%d]", field, j)
			if normalize(ph.Text) == "" {
				return invalid(pf+".text", "must contain a letter or digit")
			}
			if ph.Weight < 1 || ph.Weight > maxWeight {
				return invalid(pf+".weight", "must be between 1 and 100")
			}
		}
	}

	t := p.Thresholds
	if t.Sensitive <= 0 || t.Sensitive >= t.Critical || t.Critical > maxScore {
		return invalid("thresholds", "require 0 < sensitive < critical <= 100")
	}
	if p.StressMarkerBump < 0 || p.StressMarkerBump > maxScore {
		return invalid("stress_marker_bump", "must be between 0 and 100")
	}

	if p.SafetyBuffer.Text == "" {
		return invalid("safety_buffer.text", "is required")
	}
	if p.SafetyBuffer.Position != PositionPrefix && p.SafetyBuffer.Position != PositionSuffix {
		return invalid("safety_buffer.position", "must be prefix or suffix")
	}
	if p.SafeResponse.Default == "" {
		return invalid("safe_response.default", "is required")
	}

	for level, actions := range p.PrivilegedActions {
		if !level.Valid() {
			return invalid("privileged_actions", fmt.Sprintf("unknown risk level %q", level))
		}
		for _, a := range actions {
			if _, err := domain.ParseAction(string(a)); err != nil {
				return invalid("privileged_actions."+string(level), fmt.Sprintf("unknown action %q", a))
			}
		}
	}
	return nil
}

func invalid(field, msg string) error {
	return domain.NewValidationError("policy."+field, msg)
}
