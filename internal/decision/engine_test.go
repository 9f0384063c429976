package decision_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/internal/audit"
	"github.com/jonesrussell/north-cloud/moderation/internal/decision"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/policy"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

const original = "You and your partner both withdraw under stress."

type fixture struct {
	engine *decision.Engine
	store  *queue.MemoryStore
	pol    *policy.Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ps, err := policy.NewStore(policy.Default(), "")
	require.NoError(t, err)

	store := queue.NewMemoryStore()
	engine := decision.NewEngine(store, ps, logger.NewNop(), decision.WithClock(func() time.Time { return t0.Add(time.Minute) }))
	return &fixture{engine: engine, store: store, pol: ps.Current().Policy()}
}

func (f *fixture) enqueue(t *testing.T, id string, level domain.RiskLevel, series string) {
	t.Helper()

	item := &domain.ModerationItem{
		QueueID:          id,
		ResultID:         "res-" + id,
		Series:           series,
		OriginalOutput:   original,
		RiskScore:        60,
		RiskLevel:        level,
		DetectedKeywords: domain.DetectedKeywords{},
		Status:           domain.StatusPending,
		CreatedAt:        t0,
	}
	require.NoError(t, f.store.Create(context.Background(), item, audit.Created(id, t0, level)))
}

func request(id, action string) decision.Request {
	return decision.Request{
		QueueID:   id,
		Action:    action,
		Moderator: decision.Moderator{ID: "mod-1"},
		Notes:     "Added crisis hotline note",
	}
}

func TestDecide_Outputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		action      string
		edited      string
		series      string
		wantStatus  domain.Status
		wantContent func(p *policy.Policy) string
		deliverable bool
	}{
		{
			action:      "approve_as_is",
			wantStatus:  domain.StatusApproved,
			wantContent: func(*policy.Policy) string { return original },
			deliverable: true,
		},
		{
			action:      "approve_with_buffer",
			wantStatus:  domain.StatusApprovedWithBuffer,
			wantContent: func(p *policy.Policy) string { return p.SafetyBuffer.Text + "\n\n" + original },
			deliverable: true,
		},
		{
			action:      "edit_output",
			edited:      "A gentler rewrite.",
			wantStatus:  domain.StatusEdited,
			wantContent: func(*policy.Policy) string { return "A gentler rewrite." },
			deliverable: true,
		},
		{
			action:      "safe_response_only",
			wantStatus:  domain.StatusSafeResponseOnly,
			wantContent: func(p *policy.Policy) string { return p.SafeResponse.Default },
			deliverable: true,
		},
		{
			action:      "escalated",
			wantStatus:  domain.StatusEscalated,
			wantContent: func(*policy.Policy) string { return "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.enqueue(t, "q-1", domain.RiskLevel2, "attachment")

			req := request("q-1", tt.action)
			req.EditedOutput = tt.edited
			out, err := f.engine.Decide(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantContent(f.pol), out.Content)
			assert.Equal(t, tt.deliverable, out.Deliverable)
			assert.Equal(t, t0.Add(time.Minute), out.DecidedAt)
			if !tt.deliverable {
				assert.Equal(t, decision.BlockedEscalated, out.BlockedReason)
			}

			item, entries, err := f.store.GetWithAudit(context.Background(), "q-1")
			require.NoError(t, err)
			require.NoError(t, audit.CheckAgreement(item, entries))
			require.NoError(t, item.CheckConsistency())
			assert.Equal(t, "Added crisis hotline note", item.ModeratorNotes)
		})
	}
}

func TestDecide_EditedOutputIgnoredForOtherActions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.enqueue(t, "q-1", domain.RiskLevel2, "attachment")

	req := request("q-1", "approve_as_is")
	req.EditedOutput = "should be ignored"
	out, err := f.engine.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, original, out.Content)

	item, err := f.store.Get(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Empty(t, item.EditedOutput)
}

func TestDecide_ValidationLeavesItemUntouched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*decision.Request)
		field  string
	}{
		{"edit without output", func(r *decision.Request) { r.Action = "edit_output"; r.EditedOutput = "  " }, "edited_output"},
		{"empty notes", func(r *decision.Request) { r.Notes = "" }, "notes"},
		{"unknown action", func(r *decision.Request) { r.Action = "delete" }, "action"},
		{"pending is not an action", func(r *decision.Request) { r.Action = "pending" }, "action"},
		{"no moderator", func(r *decision.Request) { r.Moderator.ID = "" }, "moderator_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.enqueue(t, "q-1", domain.RiskLevel2, "attachment")

			req := request("q-1", "approve_as_is")
			tt.mutate(&req)
			_, err := f.engine.Decide(context.Background(), req)

			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)

			item, entries, err := f.store.GetWithAudit(context.Background(), "q-1")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusPending, item.Status)
			assert.Len(t, entries, 1)
		})
	}
}

func TestDecide_SecondDecisionConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.enqueue(t, "q-1", domain.RiskLevel3, "attachment")

	_, err := f.engine.Decide(context.Background(), request("q-1", "approve_with_buffer"))
	require.NoError(t, err)

	second := request("q-1", "escalate")
	second.Moderator.ID = "mod-2"
	_, err = f.engine.Decide(context.Background(), second)

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.StatusApprovedWithBuffer, conflict.Current)

	item, err := f.store.Get(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApprovedWithBuffer, item.Status)
	assert.Equal(t, "mod-1", item.ModeratorID)
}

func TestDecide_PrivilegedReviewerRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.enqueue(t, "q-1", domain.RiskLevel3, "attachment")

	_, err := f.engine.Decide(context.Background(), request("q-1", "approve_as_is"))
	require.ErrorIs(t, err, domain.ErrForbidden)

	item, err := f.store.Get(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, item.Status)

	req := request("q-1", "approve_as_is")
	req.Moderator.Privileged = true
	out, err := f.engine.Decide(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, out.Status)
}

func TestDecide_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.engine.Decide(context.Background(), request("missing", "escalate"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDecide_ConcurrentExactlyOneWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.enqueue(t, "q-1", domain.RiskLevel2, "attachment")

	const n = 16
	actions := []string{"approve_as_is", "approve_with_buffer", "safe_response_only", "escalate"}
	outs := make([]*decision.FinalOutput, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := request("q-1", actions[i%len(actions)])
			req.Moderator.ID = fmt.Sprintf("mod-%d", i)
			outs[i], errs[i] = f.engine.Decide(context.Background(), req)
		}()
	}
	wg.Wait()

	var winner *decision.FinalOutput
	for i := range n {
		if errs[i] == nil {
			require.Nil(t, winner, "more than one decision succeeded")
			winner = outs[i]
			continue
		}
		require.ErrorIs(t, errs[i], domain.ErrConflict)
	}
	require.NotNil(t, winner)

	item, entries, err := f.store.GetWithAudit(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, winner.Status, item.Status)
	require.NoError(t, audit.CheckAgreement(item, entries))
}

func TestRender_SuffixBufferAndSeriesSafeResponse(t *testing.T) {
	t.Parallel()

	pol := policy.Default()
	pol.SafetyBuffer.Position = policy.PositionSuffix
	pol.SafeResponse.BySeries = map[string]string{"attachment": "Attachment-specific fallback."}

	decided := t0
	item := &domain.ModerationItem{QueueID: "q", Series: "attachment", OriginalOutput: original, DecidedAt: &decided}

	item.Status = domain.StatusApprovedWithBuffer
	assert.Equal(t, original+"\n\n"+pol.SafetyBuffer.Text, decision.Render(item, pol).Content)

	item.Status = domain.StatusSafeResponseOnly
	assert.Equal(t, "Attachment-specific fallback.", decision.Render(item, pol).Content)

	item.Status = domain.StatusPending
	out := decision.Render(item, pol)
	assert.False(t, out.Deliverable)
	assert.Equal(t, decision.BlockedPending, out.BlockedReason)
}

func TestTargetStatus(t *testing.T) {
	t.Parallel()

	for _, a := range domain.Actions {
		s, ok := decision.TargetStatus(a)
		require.True(t, ok, a)
		assert.True(t, s.IsTerminal(), a)
	}
}
