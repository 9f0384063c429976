package policy

import "github.com/jonesrussell/north-cloud/moderation/internal/domain"

// DefaultVersion identifies the built-in policy.
const DefaultVersion = "builtin-1"

// Default returns the built-in policy used when no policy file is configured.
func Default() *Policy {
	return &Policy{
		Version: DefaultVersion,
		Categories: []Category{
			{
				Name:  "self_harm",
				Flags: []string{"crisis_language"},
				Phrases: []Phrase{
					{Text: "kill myself", Weight: 50},
					{Text: "end my life", Weight: 50},
					{Text: "want to die", Weight: 50},
					{Text: "hurt myself", Weight: 45},
					{Text: "self harm", Weight: 45},
					{Text: "no reason to live", Weight: 45},
				},
			},
			{
				Name:  "abuse",
				Flags: []string{"abuse_disclosure"},
				Phrases: []Phrase{
					{Text: "hits me", Weight: 35},
					{Text: "abusive", Weight: 30},
					{Text: "controls my money", Weight: 25},
					{Text: "afraid of my partner", Weight: 35},
				},
			},
			{
				Name:  "threat",
				Flags: []string{"explicit_threat"},
				Phrases: []Phrase{
					{Text: "hurt them", Weight: 40},
					{Text: "make them pay", Weight: 30},
					{Text: "kill him", Weight: 50},
					{Text: "kill her", Weight: 50},
				},
			},
			{
				Name:  "crisis",
				Flags: []string{"crisis_language"},
				Phrases: []Phrase{
					{Text: "breaking point", Weight: 20},
					{Text: "cannot go on", Weight: 30},
					{Text: "can't go on", Weight: 30},
					{Text: "give up on everything", Weight: 25},
				},
			},
			{
				Name: "distress",
				Phrases: []Phrase{
					{Text: "hopeless", Weight: 15},
					{Text: "worthless", Weight: 15},
					{Text: "all alone", Weight: 10},
					{Text: "panic attack", Weight: 10},
				},
			},
		},
		Thresholds:       Thresholds{Sensitive: 30, Critical: 70},
		StressMarkerBump: 25,
		SafetyBuffer: SafetyBuffer{
			Position: PositionPrefix,
			Text: "If any part of this report touches on something you are struggling with, " +
				"please consider talking to a licensed counsellor or a crisis line in your area.",
		},
		SafeResponse: SafeResponse{
			Default: "Your report is being reviewed by our care team. " +
				"If you need support right now, please reach out to a local crisis line.",
		},
		PrivilegedActions: map[domain.RiskLevel][]domain.Action{
			domain.RiskLevel3: {domain.ActionApproveAsIs},
		},
	}
}
