package audit

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store, used for development and tests
type MemoryStore struct {
	mu      sync.RWMutex
	entries []memoryEntry
	seq     uint64
	now     func() time.Time
}

type memoryEntry struct {
	AuditEntry
	seq uint64
}

// MemoryStoreOption configures a MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithClock overrides the clock used to stamp CreatedAt
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stores a copy of the entry with a fresh ID and CreatedAt
func (s *MemoryStore) Append(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return AuditEntry{}, err
	}

	entry.ID = uuid.NewString()
	entry.Details = cloneDetails(entry.Details)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry.CreatedAt = s.now()
	s.seq++
	s.entries = append(s.entries, memoryEntry{AuditEntry: entry, seq: s.seq})
	return entry, nil
}

// Find returns the matching entries newest first, ties broken by insertion order
func (s *MemoryStore) Find(ctx context.Context, filter Filter, window Window) ([]AuditEntry, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matched, func(a, b memoryEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.seq, a.seq)
	})

	start := min(window.Skip, len(matched))
	end := len(matched)
	if window.Limit > 0 {
		end = min(start+window.Limit, end)
	}

	out := make([]AuditEntry, 0, end-start)
	for _, e := range matched[start:end] {
		entry := e.AuditEntry
		entry.Details = cloneDetails(entry.Details)
		out = append(out, entry)
	}
	return out, nil
}

// Count returns the number of matching entries
func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int64, error) {
	matched, err := s.match(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *MemoryStore) match(ctx context.Context, filter Filter) ([]memoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pred, err := filter.Compile()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []memoryEntry
	for _, e := range s.entries {
		if pred(e.AuditEntry) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func cloneDetails(d Details) Details {
	out := make(Details, len(d))
	for k, v := range d {
		if nested, ok := v.(Details); ok {
			v = cloneDetails(nested)
		}
		out[k] = v
	}
	return out
}
