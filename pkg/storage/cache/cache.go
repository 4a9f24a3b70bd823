// Package cache puts a two-tier count cache in front of an audit store.
//
// Totals are the expensive half of every list request. Store caches them in
// an in-process expirable LRU (L1) and, when a Redis client is configured, in
// Redis (L2). Cache keys embed a generation number that every Append bumps,
// so a new entry invalidates every cached total at once, across instances
// sharing the same Redis.
//
// Redis failures never fail a read: the cache is skipped and the call goes
// to the underlying store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

// Cache tiers, used as metric labels
const (
	TierL1 = "l1"
	TierL2 = "l2"
)

// Config tunes the count cache
type Config struct {
	TTL    time.Duration
	L1Size int
	Prefix string
}

// DefaultConfig returns the cache defaults
func DefaultConfig() Config {
	return Config{
		TTL:    30 * time.Second,
		L1Size: 1024,
		Prefix: "medtrail:audit",
	}
}

// Store wraps an audit.Store, caching Count results
type Store struct {
	next    audit.Store
	redis   *redis.Client
	l1      *lru.LRU[string, int64]
	config  Config
	metrics *observability.Metrics
	logger  *observability.Logger

	// generation used when no Redis client is configured
	localGen atomic.Int64
}

// NewStore creates the cache decorator; client and metrics may be nil
func NewStore(next audit.Store, client *redis.Client, config Config, metrics *observability.Metrics, logger *observability.Logger) *Store {
	def := DefaultConfig()
	if config.TTL <= 0 {
		config.TTL = def.TTL
	}
	if config.L1Size <= 0 {
		config.L1Size = def.L1Size
	}
	if config.Prefix == "" {
		config.Prefix = def.Prefix
	}

	return &Store{
		next:    next,
		redis:   client,
		l1:      lru.NewLRU[string, int64](config.L1Size, nil, config.TTL),
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Append writes through and bumps the generation
func (s *Store) Append(ctx context.Context, entry audit.AuditEntry) (audit.AuditEntry, error) {
	stored, err := s.next.Append(ctx, entry)
	if err != nil {
		return stored, err
	}

	s.localGen.Add(1)
	if s.redis != nil {
		if err := s.redis.Incr(ctx, s.genKey()).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to bump audit cache generation")
		}
	}
	return stored, nil
}

// Find is not cached
func (s *Store) Find(ctx context.Context, filter audit.Filter, window audit.Window) ([]audit.AuditEntry, error) {
	return s.next.Find(ctx, filter, window)
}

// Count serves totals from L1, then L2, then the underlying store
func (s *Store) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	gen, err := s.generation(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Audit cache unavailable, counting from store")
		s.miss(TierL2)
		return s.next.Count(ctx, filter)
	}

	key := fmt.Sprintf("%s:count:%d:%s", s.config.Prefix, gen, filter.Key())

	if n, ok := s.l1.Get(key); ok {
		s.hit(TierL1)
		return n, nil
	}
	s.miss(TierL1)

	if s.redis != nil {
		n, err := s.redis.Get(ctx, key).Int64()
		switch {
		case err == nil:
			s.hit(TierL2)
			s.l1.Add(key, n)
			return n, nil
		case errors.Is(err, redis.Nil):
			s.miss(TierL2)
		default:
			s.miss(TierL2)
			s.logger.WithError(err).Warn("Failed to read cached audit count")
		}
	}

	n, err := s.next.Count(ctx, filter)
	if err != nil {
		return 0, err
	}

	s.l1.Add(key, n)
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, n, s.config.TTL).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to cache audit count")
		}
	}
	return n, nil
}

func (s *Store) generation(ctx context.Context) (int64, error) {
	if s.redis == nil {
		return s.localGen.Load(), nil
	}
	raw, err := s.redis.Get(ctx, s.genKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *Store) genKey() string {
	return s.config.Prefix + ":gen"
}

func (s *Store) hit(tier string) {
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (s *Store) miss(tier string) {
	if s.metrics != nil {
		s.metrics.CacheMissesTotal.WithLabelValues(tier).Inc()
	}
}

var _ audit.Store = (*Store)(nil)
