package audit

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/medtrail/pkg/observability"
)

var errStoreDown = errors.New("store unavailable")

// failingStore rejects every operation
type failingStore struct {
	mu      sync.Mutex
	appends int
}

func (s *failingStore) Append(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	s.mu.Lock()
	s.appends++
	s.mu.Unlock()
	return AuditEntry{}, errStoreDown
}

func (s *failingStore) Find(ctx context.Context, filter Filter, window Window) ([]AuditEntry, error) {
	return nil, errStoreDown
}

func (s *failingStore) Count(ctx context.Context, filter Filter) (int64, error) {
	return 0, errStoreDown
}

// blockingStore holds appends until released
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *blockingStore) Append(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return AuditEntry{}, ctx.Err()
	}
	return s.MemoryStore.Append(ctx, entry)
}

// steppingClock returns the given instants in order, repeating the last one
func steppingClock(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[min(i, len(times)-1)]
		i++
		return t
	}
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	require.NoError(t, err)
	return d
}

func seed(t *testing.T, store Store, entries ...AuditEntry) {
	t.Helper()
	for _, e := range entries {
		if e.ActorDisplay == "" {
			e.ActorDisplay = AnonymousActor
		}
		_, err := store.Append(context.Background(), e)
		require.NoError(t, err)
	}
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}
