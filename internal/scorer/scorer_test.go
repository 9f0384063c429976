package scorer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
	"github.com/jonesrussell/north-cloud/moderation/internal/scorer"
)

func defaultScorer(t *testing.T) *scorer.Scorer {
	t.Helper()

	store, err := policy.NewStore(policy.Default(), "")
	require.NoError(t, err)
	return scorer.New(store)
}

func TestScore_NoMatches(t *testing.T) {
	t.Parallel()

	res, err := defaultScorer(t).Score("You value quality time and thoughtful gestures.", scorer.Context{Series: "love_languages"})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Score)
	assert.Equal(t, domain.RiskLevel1, res.Level)
	assert.Empty(t, res.DetectedKeywords)
	assert.Empty(t, res.Flags)
	assert.Equal(t, policy.DefaultVersion, res.PolicyVersion)
}

func TestScore_SelfHarmWithStressMarkerIsCritical(t *testing.T) {
	t.Parallel()

	res, err := defaultScorer(t).Score("Some days I want to die when we argue.", scorer.Context{StressMarker: true})
	require.NoError(t, err)

	assert.Equal(t, 75, res.Score)
	assert.Equal(t, domain.RiskLevel3, res.Level)
	assert.Contains(t, res.Flags, "crisis_language")
	assert.Equal(t, domain.DetectedKeywords{"self_harm": {"want to die"}}, res.DetectedKeywords)
}

func TestScore_SelfHarmWithoutStressIsSensitive(t *testing.T) {
	t.Parallel()

	res, err := defaultScorer(t).Score("Some days I want to die when we argue.", scorer.Context{})
	require.NoError(t, err)

	assert.Equal(t, 50, res.Score)
	assert.Equal(t, domain.RiskLevel2, res.Level)
}

func TestScore_CategoriesFlagsAndClamp(t *testing.T) {
	t.Parallel()

	text := "He hits me and I feel hopeless. I want to die. I could hurt them. I'm at my breaking point."
	res, err := defaultScorer(t).Score(text, scorer.Context{StressMarker: true})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Score)
	assert.Equal(t, []string{"abuse", "distress", "self_harm", "threat", "crisis"}, res.Categories)
	assert.Equal(t, []string{"abuse_disclosure", "crisis_language", "explicit_threat"}, res.Flags)
}

func TestScore_HintRaisesFlagsOnly(t *testing.T) {
	t.Parallel()

	res, err := defaultScorer(t).Score("Your attachment style is secure.", scorer.Context{Hints: []string{"abuse", "unknown"}})
	require.NoError(t, err)

	assert.Equal(t, 0, res.Score)
	assert.Equal(t, []string{"abuse_disclosure"}, res.Flags)
	assert.Empty(t, res.DetectedKeywords)
}

func TestScore_EmptyText(t *testing.T) {
	t.Parallel()

	_, err := defaultScorer(t).Score(" \n\t", scorer.Context{})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "text", vErr.Field)
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	snap, err := policy.Compile(policy.Default())
	require.NoError(t, err)

	text := "I feel worthless and all alone; sometimes I want to hurt myself."
	sc := scorer.Context{Series: "self_worth", StressMarker: true, Hints: []string{"crisis"}}

	first, err := scorer.Score(snap, text, sc)
	require.NoError(t, err)
	for range 50 {
		again, err := scorer.Score(snap, text, sc)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestScorer_UsesSwappedSnapshot(t *testing.T) {
	t.Parallel()

	store, err := policy.NewStore(policy.Default(), "")
	require.NoError(t, err)
	s := scorer.New(store)

	strict := policy.Default()
	strict.Version = "strict"
	strict.Thresholds = policy.Thresholds{Sensitive: 5, Critical: 15}
	_, err = store.Swap(strict)
	require.NoError(t, err)

	res, err := s.Score("I feel hopeless.", scorer.Context{})
	require.NoError(t, err)
	assert.Equal(t, "strict", res.PolicyVersion)
	assert.Equal(t, domain.RiskLevel3, res.Level)
}
