package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
)

func lexicon(t *testing.T, cats ...policy.Category) *policy.Snapshot {
	t.Helper()

	p := policy.Default()
	p.Categories = cats
	snap, err := policy.Compile(p)
	require.NoError(t, err)
	return snap
}

func TestSnapshot_MatchesWholeWordsOnly(t *testing.T) {
	t.Parallel()

	snap := lexicon(t, policy.Category{Name: "distress", Phrases: []policy.Phrase{{Text: "alone", Weight: 10}}})

	assert.Empty(t, snap.Match("They left me standing alonely by the door"))
	assert.Len(t, snap.Match("I feel ALONE."), 1)
}

func TestSnapshot_MatchNormalizesPunctuationAndSpacing(t *testing.T) {
	t.Parallel()

	snap := lexicon(t,
		policy.Category{Name: "crisis", Phrases: []policy.Phrase{{Text: "can't go on", Weight: 30}}},
	)

	hits := snap.Match("Honestly...I   CAN’T\tgo on!")
	require.Len(t, hits, 1)
	assert.Equal(t, "cant go on", hits[0].Phrase)
}

func TestSnapshot_RepeatedPhraseCountsOnce(t *testing.T) {
	t.Parallel()

	snap := lexicon(t, policy.Category{Name: "distress", Phrases: []policy.Phrase{{Text: "hopeless", Weight: 15}}})

	assert.Len(t, snap.Match("hopeless, hopeless, hopeless"), 1)
}

func TestSnapshot_SharedPhraseHitsEveryCategory(t *testing.T) {
	t.Parallel()

	snap := lexicon(t,
		policy.Category{Name: "self_harm", Phrases: []policy.Phrase{{Text: "end it", Weight: 40}}},
		policy.Category{Name: "crisis", Phrases: []policy.Phrase{{Text: "end it", Weight: 20}}},
	)

	hits := snap.Match("I just want to end it")
	require.Len(t, hits, 2)
	assert.Equal(t, policy.Hit{Phrase: "end it", Category: 0, Weight: 40}, hits[0])
	assert.Equal(t, policy.Hit{Phrase: "end it", Category: 1, Weight: 20}, hits[1])
}

func TestSnapshot_HitsOrderedByPosition(t *testing.T) {
	t.Parallel()

	snap := lexicon(t, policy.Category{Name: "distress", Phrases: []policy.Phrase{
		{Text: "worthless", Weight: 10},
		{Text: "hopeless", Weight: 10},
		{Text: "all alone", Weight: 10},
	}})

	hits := snap.Match("hopeless and all alone, and worthless")
	phrases := make([]string, len(hits))
	for i, h := range hits {
		phrases[i] = h.Phrase
	}
	assert.Equal(t, []string{"hopeless", "all alone", "worthless"}, phrases)
}

func TestSnapshot_EmptyText(t *testing.T) {
	t.Parallel()

	snap, err := policy.Compile(policy.Default())
	require.NoError(t, err)
	assert.Nil(t, snap.Match("  ?! "))
}
