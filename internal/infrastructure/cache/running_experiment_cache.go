package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marketplace/backend/internal/domain/experiment"
	"go.uber.org/zap"
)

// Constants for in-memory cache configuration
const (
	defaultCleanupInterval = 30 * time.Second
	defaultEntryTTL        = 30 * time.Second
)

// InMemoryRunningExperimentCache implements RunningExperimentCache using
// in-memory storage. The assignment hot path reads it on every variant
// lookup; lifecycle transitions invalidate the affected type.
type InMemoryRunningExperimentCache struct {
	entries sync.Map // map[experiment.ExperimentType]*cacheEntry
	logger  *zap.Logger
	stopCh  chan struct{}
	stopped int32

	// Stats for monitoring
	hits   int64
	misses int64
}

// cacheEntry wraps a cached experiment set with expiration time
type cacheEntry struct {
	experiments []experiment.Experiment
	expiresAt   time.Time
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryRunningExperimentCacheOption is a functional option for configuring the cache
type InMemoryRunningExperimentCacheOption func(*InMemoryRunningExperimentCache)

// WithCacheLogger sets the logger for the cache
func WithCacheLogger(logger *zap.Logger) InMemoryRunningExperimentCacheOption {
	return func(c *InMemoryRunningExperimentCache) {
		c.logger = logger
	}
}

// NewInMemoryRunningExperimentCache creates a new in-memory running experiment cache
func NewInMemoryRunningExperimentCache(opts ...InMemoryRunningExperimentCacheOption) *InMemoryRunningExperimentCache {
	cache := &InMemoryRunningExperimentCache{
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	// Start background cleanup goroutine
	go cache.cleanupExpired()

	return cache
}

// GetRunningByType returns the cached running experiments for a type
func (c *InMemoryRunningExperimentCache) GetRunningByType(ctx context.Context, expType experiment.ExperimentType) ([]experiment.Experiment, bool) {
	if value, ok := c.entries.Load(expType); ok {
		entry := value.(*cacheEntry)
		if !entry.isExpired() {
			atomic.AddInt64(&c.hits, 1)
			c.logger.Debug("Cache hit for running experiments",
				zap.String("type", string(expType)))
			return entry.experiments, true
		}
		// Expired, remove from cache
		c.entries.Delete(expType)
	}

	atomic.AddInt64(&c.misses, 1)
	c.logger.Debug("Cache miss for running experiments",
		zap.String("type", string(expType)))
	return nil, false
}

// SetRunningByType stores the running experiments for a type
func (c *InMemoryRunningExperimentCache) SetRunningByType(ctx context.Context, expType experiment.ExperimentType, experiments []experiment.Experiment, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultEntryTTL
	}

	entry := &cacheEntry{
		experiments: experiments,
		expiresAt:   time.Now().Add(ttl),
	}

	c.entries.Store(expType, entry)
	c.logger.Debug("Cached running experiments",
		zap.String("type", string(expType)),
		zap.Int("count", len(experiments)),
		zap.Duration("ttl", ttl))
}

// InvalidateType drops the cached entry for one type
func (c *InMemoryRunningExperimentCache) InvalidateType(ctx context.Context, expType experiment.ExperimentType) {
	c.entries.Delete(expType)
	c.logger.Debug("Invalidated running experiment cache",
		zap.String("type", string(expType)))
}

// InvalidateAll drops every cached entry
func (c *InMemoryRunningExperimentCache) InvalidateAll(ctx context.Context) {
	c.entries.Range(func(key, _ any) bool {
		c.entries.Delete(key)
		return true
	})
	c.logger.Info("Invalidated all running experiment cache entries")
}

// Close releases any resources held by the cache
func (c *InMemoryRunningExperimentCache) Close() error {
	// Only close once
	if atomic.CompareAndSwapInt32(&c.stopped, 0, 1) {
		close(c.stopCh)
	}
	return nil
}

// GetStats returns cache statistics
func (c *InMemoryRunningExperimentCache) GetStats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Count returns the number of entries in the cache
func (c *InMemoryRunningExperimentCache) Count() int {
	count := 0
	c.entries.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// cleanupExpired periodically removes expired entries from the cache
func (c *InMemoryRunningExperimentCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("Panic in cache cleanup",
							zap.Any("panic", r))
					}
				}()
				c.doCleanup()
			}()
		}
	}
}

// doCleanup removes expired entries from the cache
func (c *InMemoryRunningExperimentCache) doCleanup() {
	removed := 0

	c.entries.Range(func(key, value any) bool {
		entry := value.(*cacheEntry)
		if entry.isExpired() {
			c.entries.Delete(key)
			removed++
		}
		return true
	})

	if removed > 0 {
		c.logger.Debug("Cleaned up expired cache entries",
			zap.Int("removed", removed))
	}
}

// Ensure InMemoryRunningExperimentCache implements RunningExperimentCache
var _ experiment.RunningExperimentCache = (*InMemoryRunningExperimentCache)(nil)
