package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/moderation/internal/audit"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
	"github.com/jonesrussell/north-cloud/moderation/internal/queue"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *queue.MemoryStore, id string, level domain.RiskLevel, createdAt time.Time) *domain.ModerationItem {
	t.Helper()

	item := &domain.ModerationItem{
		QueueID:          id,
		ResultID:         "res-" + id,
		Series:           "attachment",
		OriginalOutput:   "original " + id,
		RiskScore:        50,
		RiskLevel:        level,
		DetectedKeywords: domain.DetectedKeywords{},
		Status:           domain.StatusPending,
		CreatedAt:        createdAt,
	}
	require.NoError(t, s.Create(context.Background(), item, audit.Created(id, createdAt, level)))
	return item
}

func decide(id string, status domain.Status, at time.Time) queue.Transition {
	return queue.Transition{QueueID: id, Status: status, ModeratorID: "mod-1", Notes: "reviewed", At: at}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	orig := seed(t, s, "q-1", domain.RiskLevel2, t0)

	got, err := s.Get(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, orig, got)

	got.Status = domain.StatusApproved
	again, err := s.Get(context.Background(), "q-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status, "returned items must not alias store state")

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = s.Create(context.Background(), orig, audit.Created("q-1", t0, domain.RiskLevel2))
	assert.Error(t, err)
}

func TestMemoryStore_ListOrderAndFilter(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	seed(t, s, "a", domain.RiskLevel2, t0)
	seed(t, s, "b", domain.RiskLevel3, t0.Add(time.Minute))
	seed(t, s, "c", domain.RiskLevel2, t0.Add(time.Minute))
	seed(t, s, "d", domain.RiskLevel3, t0.Add(2*time.Minute))

	_, _, err := s.Decide(context.Background(), decide("d", domain.StatusEscalated, t0.Add(time.Hour)))
	require.NoError(t, err)

	ids := func(items []*domain.ModerationItem) []string {
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.QueueID
		}
		return out
	}

	all, err := s.List(context.Background(), queue.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(all))

	pending, err := s.List(context.Background(), queue.Filter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(pending))

	critical, err := s.List(context.Background(), queue.Filter{Status: domain.StatusPending, RiskLevel: domain.RiskLevel3})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(critical))
}

func TestMemoryStore_DecideOnce(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	seed(t, s, "q-1", domain.RiskLevel3, t0)

	tr := decide("q-1", domain.StatusEdited, t0.Add(time.Minute))
	tr.EditedOutput = "rewritten"
	item, entry, err := s.Decide(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEdited, item.Status)
	assert.Equal(t, "rewritten", item.EditedOutput)
	assert.Equal(t, 2, entry.Seq)
	require.NotNil(t, item.DecidedAt)
	assert.Equal(t, entry.Timestamp, *item.DecidedAt)

	_, _, err = s.Decide(context.Background(), decide("q-1", domain.StatusEscalated, t0.Add(2*time.Minute)))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.StatusEdited, conflict.Current)

	got, entries, err := s.GetWithAudit(context.Background(), "q-1")
	require.NoError(t, err)
	assert.NoError(t, audit.CheckAgreement(got, entries))
	assert.Len(t, entries, 2)
}

func TestMemoryStore_DecidedAtNeverPrecedesAudit(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	seed(t, s, "q-1", domain.RiskLevel2, t0)

	item, _, err := s.Decide(context.Background(), decide("q-1", domain.StatusApproved, t0.Add(-time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, t0, *item.DecidedAt)
}

func TestMemoryStore_ConcurrentDecideExactlyOneWins(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	seed(t, s, "q-1", domain.RiskLevel3, t0)

	const deciders = 32
	statuses := []domain.Status{domain.StatusApproved, domain.StatusEscalated, domain.StatusSafeResponseOnly}

	var wg sync.WaitGroup
	errs := make([]error, deciders)
	for i := range deciders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := decide("q-1", statuses[i%len(statuses)], t0.Add(time.Duration(i)*time.Second))
			tr.ModeratorID = fmt.Sprintf("mod-%d", i)
			_, _, errs[i] = s.Decide(context.Background(), tr)
		}()
	}
	// claims race with decisions on the same record
	for i := range deciders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Claim(context.Background(), "q-1", fmt.Sprintf("viewer-%d", i), t0)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	item, entries, err := s.GetWithAudit(context.Background(), "q-1")
	require.NoError(t, err)
	require.NoError(t, audit.CheckAgreement(item, entries))

	decisions := 0
	for _, e := range entries {
		if e.Action == domain.AuditDecision {
			decisions++
		}
	}
	assert.Equal(t, 1, decisions)
}

func TestMemoryStore_ClaimOnlyWhilePending(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	seed(t, s, "q-1", domain.RiskLevel2, t0)

	_, entries, err := s.Claim(context.Background(), "q-1", "mod-1", t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditClaimed, entries[1].Action)

	_, _, err = s.Decide(context.Background(), decide("q-1", domain.StatusApproved, t0.Add(time.Minute)))
	require.NoError(t, err)

	_, entries, err = s.Claim(context.Background(), "q-1", "mod-2", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	_, _, err = s.Claim(context.Background(), "missing", "mod-1", t0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_AppendAuditIsMonotonic(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	seed(t, s, "q-1", domain.RiskLevel2, t0)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendAudit(context.Background(), audit.Claimed("q-1", "mod", t0.Add(time.Duration(20-i)*time.Second)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries, err := s.ReadAudit(context.Background(), "q-1")
	require.NoError(t, err)
	require.Len(t, entries, 21)
	assert.NoError(t, audit.Validate(entries))

	_, err = s.AppendAudit(context.Background(), audit.Claimed("missing", "mod", t0))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_Counts(t *testing.T) {
	t.Parallel()

	s := queue.NewMemoryStore()
	seed(t, s, "old", domain.RiskLevel2, t0.Add(-48*time.Hour))
	seed(t, s, "a", domain.RiskLevel3, t0)
	seed(t, s, "b", domain.RiskLevel3, t0)
	_, _, err := s.Decide(context.Background(), decide("b", domain.StatusApproved, t0))
	require.NoError(t, err)

	all, err := s.Counts(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []queue.Count{
		{RiskLevel: domain.RiskLevel2, Status: domain.StatusPending, N: 1},
		{RiskLevel: domain.RiskLevel3, Status: domain.StatusPending, N: 1},
		{RiskLevel: domain.RiskLevel3, Status: domain.StatusApproved, N: 1},
	}, all)

	recent, err := s.Counts(context.Background(), t0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestMemoryStore_HonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := queue.NewMemoryStore().List(ctx, queue.Filter{})
	assert.ErrorIs(t, err, context.Canceled)
}
