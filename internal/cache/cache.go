// internal/cache/cache.go

// Package cache implements the engine's two-tier cache: a shared Redis tier
// that may be unavailable, decorated with an always-available in-process
// tier. Every set writes both tiers; reads prefer the distributed tier and
// fall through to local on miss or outage.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	commonerrors "shop-recommender/internal/common/errors"
	"shop-recommender/internal/common/logger"
	"shop-recommender/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// Status reports tier availability.
type Status struct {
	DistributedAvailable bool `json:"distributedAvailable"`
	LocalAvailable       bool `json:"localAvailable"`
}

// Cache is the contract the scorers, blender, and explanation generator use.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// DeletePattern removes distributed-tier keys matching the glob pattern
	// and returns the number deleted.
	DeletePattern(ctx context.Context, pattern string) int
	// ClearUser removes every cached entry for the user: pattern deletes on
	// the distributed tier, full flush of the local tier.
	ClearUser(ctx context.Context, userID string)
	Status() Status
}

// Manager is the production Cache implementation.
type Manager struct {
	redis     *redis.Client // nil when no distributed tier is configured
	available atomic.Bool
	local     *memoryCache
	logger    logger.Logger

	sweepPeriod time.Duration
	probePeriod time.Duration
	stop        chan struct{}
}

type Option func(*Manager)

// WithSweepPeriod overrides how often expired local entries are collected.
func WithSweepPeriod(d time.Duration) Option {
	return func(m *Manager) { m.sweepPeriod = d }
}

// WithProbePeriod overrides how often an unavailable distributed tier is
// re-probed.
func WithProbePeriod(d time.Duration) Option {
	return func(m *Manager) { m.probePeriod = d }
}

// NewManager builds the two-tier cache. redisClient may be nil, in which case
// the manager runs local-only. The distributed tier is probed once up front;
// afterwards a failed operation marks it unavailable and the background loop
// restores it when a probe succeeds.
func NewManager(redisClient *redis.Client, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		redis:       redisClient,
		local:       newMemoryCache(),
		logger:      log.WithFields(map[string]interface{}{"component": "cache"}),
		sweepPeriod: time.Minute,
		probePeriod: 30 * time.Second,
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.redis != nil {
		m.probe(context.Background())
	}

	go m.maintenanceLoop()
	return m
}

// Close stops the sweep/probe loop. It does not close the Redis client; the
// caller owns that connection.
func (m *Manager) Close() {
	close(m.stop)
}

func (m *Manager) Get(ctx context.Context, key string) (string, bool) {
	if m.distributedAvailable() {
		value, err := m.redis.Get(ctx, key).Result()
		if err == nil {
			metrics.CacheOperations.WithLabelValues("distributed", "hit").Inc()
			return value, true
		}
		if !errors.Is(err, redis.Nil) {
			m.markUnavailable(err)
		} else {
			metrics.CacheOperations.WithLabelValues("distributed", "miss").Inc()
		}
	}

	if value, ok := m.local.get(key, time.Now()); ok {
		metrics.CacheOperations.WithLabelValues("local", "hit").Inc()
		return value, true
	}
	metrics.CacheOperations.WithLabelValues("local", "miss").Inc()
	return "", false
}

func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) {
	// Local write is the durable one; the distributed write is best effort.
	m.local.set(key, value, ttl, time.Now())
	metrics.CacheOperations.WithLabelValues("local", "set").Inc()

	if m.distributedAvailable() {
		if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
			m.markUnavailable(err)
			return
		}
		metrics.CacheOperations.WithLabelValues("distributed", "set").Inc()
	}
}

func (m *Manager) Delete(ctx context.Context, key string) {
	m.local.delete(key)
	if m.distributedAvailable() {
		if err := m.redis.Del(ctx, key).Err(); err != nil {
			m.markUnavailable(err)
		}
	}
}

func (m *Manager) DeletePattern(ctx context.Context, pattern string) int {
	if !m.distributedAvailable() {
		return 0
	}

	var keys []string
	iter := m.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		m.markUnavailable(err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		m.markUnavailable(err)
		return 0
	}
	return len(keys)
}

func (m *Manager) ClearUser(ctx context.Context, userID string) {
	deleted := m.DeletePattern(ctx, fmt.Sprintf("user:%s:*", userID))
	deleted += m.DeletePattern(ctx, fmt.Sprintf("explanation:%s:*", userID))

	// The local tier has no key scan; a full flush is the coarse but cheap
	// equivalent, since local entries rebuild on the next request.
	m.local.clear()

	m.logger.Info("cleared user cache", map[string]interface{}{
		"userId":          userID,
		"distributedKeys": deleted,
	})
}

func (m *Manager) Status() Status {
	return Status{
		DistributedAvailable: m.distributedAvailable(),
		LocalAvailable:       true,
	}
}

func (m *Manager) distributedAvailable() bool {
	return m.redis != nil && m.available.Load()
}

func (m *Manager) markUnavailable(err error) {
	if m.available.CompareAndSwap(true, false) {
		metrics.CacheOperations.WithLabelValues("distributed", "error").Inc()
		m.logger.WithError(commonerrors.NewCacheUnavailableError("distributed", err)).
			Warn("distributed cache tier unavailable", nil)
	}
}

func (m *Manager) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := m.redis.Ping(ctx).Err()
	wasAvailable := m.available.Swap(err == nil)
	if err == nil && !wasAvailable {
		m.logger.Info("distributed cache tier available", nil)
	}
}

func (m *Manager) maintenanceLoop() {
	sweep := time.NewTicker(m.sweepPeriod)
	probe := time.NewTicker(m.probePeriod)
	defer sweep.Stop()
	defer probe.Stop()

	for {
		select {
		case <-sweep.C:
			m.local.sweep(time.Now())
		case <-probe.C:
			if m.redis != nil && !m.available.Load() {
				m.probe(context.Background())
			}
		case <-m.stop:
			return
		}
	}
}
