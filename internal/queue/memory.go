package queue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/north-cloud/moderation/internal/audit"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// itemState is an immutable view of one item and its trail. Writers publish
// a new itemState with compare-and-swap; readers never see a half-applied
// change.
type itemState struct {
	item  *domain.ModerationItem
	audit []domain.AuditEntry
}

type record struct {
	state atomic.Pointer[itemState]
}

// MemoryStore is a Store kept in process memory. Writes to different items
// never contend; writes to the same item are serialized by CAS.
type MemoryStore struct {
	items sync.Map // queue id -> *record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) load(queueID string) (*record, *itemState, error) {
	v, ok := s.items.Load(queueID)
	if !ok {
		return nil, nil, domain.NotFound(queueID)
	}
	rec := v.(*record) //nolint:forcetypeassert // only *record is stored
	return rec, rec.state.Load(), nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, item *domain.ModerationItem, created domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := &record{}
	rec.state.Store(&itemState{
		item:  item.Clone(),
		audit: []domain.AuditEntry{audit.Next(nil, created)},
	})
	if _, loaded := s.items.LoadOrStore(item.QueueID, rec); loaded {
		return fmt.Errorf("queue item %s already exists", item.QueueID)
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, queueID string) (*domain.ModerationItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, st, err := s.load(queueID)
	if err != nil {
		return nil, err
	}
	return st.item.Clone(), nil
}

// GetWithAudit implements Store.
func (s *MemoryStore) GetWithAudit(ctx context.Context, queueID string) (*domain.ModerationItem, []domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	_, st, err := s.load(queueID)
	if err != nil {
		return nil, nil, err
	}
	return st.item.Clone(), slices.Clone(st.audit), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, f Filter) ([]*domain.ModerationItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.ModerationItem, 0)
	s.items.Range(func(_, v any) bool {
		st := v.(*record).state.Load() //nolint:forcetypeassert // only *record is stored
		if f.Matches(st.item) {
			out = append(out, st.item.Clone())
		}
		return true
	})

	slices.SortFunc(out, func(a, b *domain.ModerationItem) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.QueueID, a.QueueID)
	})
	return out, nil
}

// AppendAudit implements audit.Log.
func (s *MemoryStore) AppendAudit(ctx context.Context, e domain.AuditEntry) (domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditEntry{}, err
	}
	rec, _, err := s.load(e.QueueID)
	if err != nil {
		return domain.AuditEntry{}, err
	}

	for {
		old := rec.state.Load()
		next := audit.Next(old.audit, e)
		if rec.state.CompareAndSwap(old, &itemState{item: old.item, audit: append(slices.Clip(old.audit), next)}) {
			return next, nil
		}
	}
}

// ReadAudit implements audit.Log.
func (s *MemoryStore) ReadAudit(ctx context.Context, queueID string) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, st, err := s.load(queueID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(st.audit), nil
}

// Claim implements Store.
func (s *MemoryStore) Claim(ctx context.Context, queueID, moderatorID string, at time.Time) (*domain.ModerationItem, []domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rec, _, err := s.load(queueID)
	if err != nil {
		return nil, nil, err
	}

	for {
		old := rec.state.Load()
		if old.item.Status != domain.StatusPending {
			return old.item.Clone(), slices.Clone(old.audit), nil
		}
		entry := audit.Next(old.audit, audit.Claimed(queueID, moderatorID, at))
		next := &itemState{item: old.item, audit: append(slices.Clip(old.audit), entry)}
		if rec.state.CompareAndSwap(old, next) {
			return next.item.Clone(), slices.Clone(next.audit), nil
		}
	}
}

// Decide implements Store.
func (s *MemoryStore) Decide(ctx context.Context, t Transition) (*domain.ModerationItem, domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.AuditEntry{}, err
	}
	rec, _, err := s.load(t.QueueID)
	if err != nil {
		return nil, domain.AuditEntry{}, err
	}

	for {
		old := rec.state.Load()
		if old.item.Status != domain.StatusPending {
			return nil, domain.AuditEntry{}, &domain.ConflictError{QueueID: t.QueueID, Current: old.item.Status}
		}

		entry := audit.Next(old.audit, audit.Decision(t.QueueID, t.ModeratorID, t.Notes, t.At, t.Status))
		decidedAt := entry.Timestamp

		item := old.item.Clone()
		item.Status = t.Status
		item.ModeratorID = t.ModeratorID
		item.ModeratorNotes = t.Notes
		item.DecidedAt = &decidedAt
		if t.Status == domain.StatusEdited {
			item.EditedOutput = t.EditedOutput
		}

		next := &itemState{item: item, audit: append(slices.Clip(old.audit), entry)}
		if rec.state.CompareAndSwap(old, next) {
			return item.Clone(), entry, nil
		}
	}
}

// Counts implements Store.
func (s *MemoryStore) Counts(ctx context.Context, since time.Time) ([]Count, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type key struct {
		level  domain.RiskLevel
		status domain.Status
	}
	counts := make(map[key]int)
	s.items.Range(func(_, v any) bool {
		item := v.(*record).state.Load().item //nolint:forcetypeassert // only *record is stored
		if since.IsZero() || !item.CreatedAt.Before(since) {
			counts[key{item.RiskLevel, item.Status}]++
		}
		return true
	})

	out := make([]Count, 0, len(counts))
	for k, n := range counts {
		out = append(out, Count{RiskLevel: k.level, Status: k.status, N: n})
	}
	return out, nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
