package cache

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, &bytes.Buffer{})
}

// countingStore records how often Count reaches the backing store
type countingStore struct {
	*audit.MemoryStore
	counts atomic.Int32
}

func (s *countingStore) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	s.counts.Add(1)
	return s.MemoryStore.Count(ctx, filter)
}

func newBacking(t *testing.T, n int) *countingStore {
	t.Helper()
	s := &countingStore{MemoryStore: audit.NewMemoryStore()}
	for i := 0; i < n; i++ {
		_, err := s.MemoryStore.Append(context.Background(), audit.AuditEntry{
			Action: "create_user", Entity: "LabUser", ActorDisplay: "admin",
		})
		require.NoError(t, err)
	}
	return s
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestStore_L1Only(t *testing.T) {
	backing := newBacking(t, 3)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	store := NewStore(backing, nil, Config{}, metrics, testLogger())
	ctx := context.Background()

	n, err := store.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = store.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int32(1), backing.counts.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(TierL1)))

	_, err = store.Append(ctx, audit.AuditEntry{Action: "delete_user", Entity: "LabUser", ActorDisplay: "admin"})
	require.NoError(t, err)

	n, err = store.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "append invalidates cached totals")
	assert.Equal(t, int32(2), backing.counts.Load())
}

func TestStore_FiltersCachedSeparately(t *testing.T) {
	backing := newBacking(t, 2)
	store := NewStore(backing, nil, Config{}, nil, testLogger())
	ctx := context.Background()

	filter, err := audit.NewComposer(time.UTC).Compose(audit.QueryParams{Action: "delete"})
	require.NoError(t, err)

	all, err := store.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	none, err := store.Count(ctx, filter)
	require.NoError(t, err)

	assert.Equal(t, int64(2), all)
	assert.Zero(t, none)
}

func TestStore_RedisTier(t *testing.T) {
	mr, client := setupRedis(t)
	backing := newBacking(t, 5)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	first := NewStore(backing, client, Config{TTL: time.Minute}, metrics, testLogger())
	n, err := first.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.True(t, mr.Exists("medtrail:audit:count:0:"))
	assert.Equal(t, time.Minute, mr.TTL("medtrail:audit:count:0:"))

	// a second instance shares L2 but not L1
	second := NewStore(backing, client, Config{TTL: time.Minute}, metrics, testLogger())
	n, err = second.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, int32(1), backing.counts.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(TierL2)))

	_, err = first.Append(ctx, audit.AuditEntry{Action: "create_report", Entity: "LabReport", ActorDisplay: "admin"})
	require.NoError(t, err)
	gen, err := mr.Get("medtrail:audit:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	n, err = second.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(6), n, "generation bump seen by other instances")
	assert.Equal(t, int32(2), backing.counts.Load())
}

func TestStore_RedisDownFallsThrough(t *testing.T) {
	mr, client := setupRedis(t)
	backing := newBacking(t, 2)
	store := NewStore(backing, client, Config{}, nil, testLogger())
	ctx := context.Background()

	mr.Close()

	n, err := store.Count(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.Append(ctx, audit.AuditEntry{Action: "create_user", Entity: "LabUser", ActorDisplay: "admin"})
	require.NoError(t, err, "append succeeds even when the generation cannot be bumped")
}

func TestStore_FindPassesThrough(t *testing.T) {
	backing := newBacking(t, 3)
	store := NewStore(backing, nil, Config{}, nil, testLogger())

	got, err := store.Find(context.Background(), audit.Filter{}, audit.NewWindow(2, 0))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	_, err = NewRedisClient(context.Background(), RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}
