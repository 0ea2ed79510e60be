// Package cache holds aggregate read results for a fixed TTL.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"zend/internal/domain"
	"zend/internal/infra/telemetry"
)

// ComputeFunc produces a fresh value for a key.
type ComputeFunc func(ctx context.Context) (json.RawMessage, error)

type Options struct {
	Store          Store
	TTL            time.Duration
	ComputeTimeout time.Duration
	Logger         *zap.Logger
	Metrics        domain.Metrics
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Cache serves unexpired entries and coalesces concurrent misses on the
// same key into one computation. Failed computations are never stored.
type Cache struct {
	store          Store
	ttl            time.Duration
	computeTimeout time.Duration
	logger         *zap.Logger
	metrics        domain.Metrics
	now            func() time.Time
	group          singleflight.Group
}

func New(opts Options) *Cache {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = domain.CacheTTL
	}
	computeTimeout := opts.ComputeTimeout
	if computeTimeout <= 0 {
		computeTimeout = time.Duration(domain.DefaultCacheComputeTimeoutSeconds) * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		store:          store,
		ttl:            ttl,
		computeTimeout: computeTimeout,
		logger:         logger.Named("cache"),
		metrics:        metrics,
		now:            now,
	}
}

// GetOrCompute returns the cached value for key, computing it with fn when
// absent or expired. Store failures are logged and treated as a miss.
func (c *Cache) GetOrCompute(ctx context.Context, key string, fn ComputeFunc) (json.RawMessage, error) {
	if value, ok := c.lookup(key); ok {
		c.metrics.ObserveCache(key, domain.CacheHit)
		return value, nil
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		c.metrics.ObserveCache(key, domain.CacheMiss)

		// Detached from the first caller so its cancellation does not fail
		// the other callers waiting on the same key.
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		value, err := fn(computeCtx)
		if err != nil {
			return nil, err
		}
		c.save(key, value)
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	value := result.(json.RawMessage)
	return append(json.RawMessage(nil), value...), nil
}

// Invalidate drops key so the next read recomputes.
func (c *Cache) Invalidate(key string) {
	if err := c.store.Delete(key); err != nil {
		c.unavailable(key, "delete", err)
	}
}

func (c *Cache) lookup(key string) (json.RawMessage, bool) {
	entry, ok, err := c.store.Get(key)
	if err != nil {
		c.unavailable(key, "read", err)
		return nil, false
	}
	if !ok || entry.Expired(c.now()) {
		return nil, false
	}
	return entry.Value, true
}

func (c *Cache) save(key string, value json.RawMessage) {
	err := c.store.Put(Entry{Key: key, Value: value, InsertedAt: c.now(), TTL: c.ttl})
	if err != nil {
		c.unavailable(key, "write", err)
	}
}

func (c *Cache) unavailable(key, op string, err error) {
	c.metrics.ObserveCache(key, domain.CacheUnavailable)
	c.logger.Warn("cache store unavailable",
		telemetry.EventField(telemetry.EventCacheUnavailable),
		telemetry.CacheKeyField(key),
		zap.String("op", op),
		zap.Error(domain.E(domain.KindCacheUnavailable, "cache "+op, "", err)),
	)
}
