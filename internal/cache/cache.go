package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source tells a caller where a read was served from.
type Source string

const (
	SourceCache Source = "cache"
	SourceStore Source = "store"
)

// Cache implements cache-aside over a Store. The relational store stays the system of
// record: every cache failure is logged and swallowed, never returned to the caller.
type Cache struct {
	store Store
	ttl   TTL
	log   *zap.Logger
	sfg   singleflight.Group // one store read per key and epoch at a time

	// epoch is bumped by every Invalidate. A load that started in an older epoch may hold
	// pre-write data, so its result is returned to the callers that were already waiting
	// but never written to the cache. mu orders that check against the bump.
	mu          sync.RWMutex
	epoch       atomic.Uint64
	loadTimeout time.Duration

	hits     metric.Int64Counter
	misses   metric.Int64Counter
	failures metric.Int64Counter
}

const defaultLoadTimeout = 10 * time.Second

func New(store Store, ttl TTL, log *zap.Logger) *Cache {
	meter := otel.Meter("cache")
	hits, _ := meter.Int64Counter("cache.hits")
	misses, _ := meter.Int64Counter("cache.misses")
	failures, _ := meter.Int64Counter("cache.failures")
	return &Cache{
		store:       store,
		ttl:         ttl,
		log:         log,
		loadTimeout: defaultLoadTimeout,
		hits:        hits,
		misses:      misses,
		failures:    failures,
	}
}

func (c *Cache) TTL() TTL { return c.ttl }

// Fetch is the read-through path: return the cached value for key, or call load, store
// its result under key (and under every alias derived from it) for ttl and return it.
// Load errors are returned and nothing is cached. Callers that arrive after an Invalidate
// never share a load that began before it.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error), aliases ...func(T) string) (T, Source, error) {
	var zero T
	if v, ok := get[T](ctx, c, key); ok {
		c.hits.Add(ctx, 1)
		return v, SourceCache, nil
	}
	c.misses.Add(ctx, 1)

	epoch := c.epoch.Load()
	res, err, _ := c.sfg.Do(key+"@"+strconv.FormatUint(epoch, 10), func() (any, error) {
		// the load is shared, so it must not die with whichever caller started it
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		v, err := load(lctx)
		if err != nil {
			return nil, err
		}
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.epoch.Load() != epoch {
			c.log.Debug("cache populate skipped, invalidated during load", zap.String("key", key))
			return v, nil
		}
		c.Put(lctx, key, v, ttl)
		for _, alias := range aliases {
			c.Put(lctx, alias(v), v, ttl)
		}
		return v, nil
	})
	if err != nil {
		return zero, SourceStore, err
	}
	return res.(T), SourceStore, nil
}

func get[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.fail(ctx, "get", key, err)
		}
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		// a corrupt entry counts as a miss and is dropped
		c.fail(ctx, "decode", key, err)
		if err := c.store.Delete(ctx, key); err != nil {
			c.fail(ctx, "delete", key, err)
		}
		return v, false
	}
	return v, true
}

// Put stores v under key; failures are logged.
func (c *Cache) Put(ctx context.Context, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		c.fail(ctx, "encode", key, err)
		return
	}
	if err := c.store.Set(ctx, key, b, ttl); err != nil {
		c.fail(ctx, "set", key, err)
	}
}

// Invalidate deletes keys and sweeps every key under each prefix. It runs on the write
// path after commit and before the write is reported as successful; failures are logged
// and the remaining keys and prefixes are still attempted. The deletes outlive ctx
// cancellation so that a committed write always tries its invalidation.
func (c *Cache) Invalidate(ctx context.Context, keys []string, prefixes ...string) {
	c.mu.Lock()
	c.epoch.Add(1)
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	if len(keys) > 0 {
		if err := c.store.Delete(ctx, keys...); err != nil {
			c.fail(ctx, "delete", keys[0], err)
		}
	}
	for _, p := range prefixes {
		n, err := c.store.DeletePrefix(ctx, p)
		if err != nil {
			c.fail(ctx, "sweep", p, err)
			continue
		}
		c.log.Debug("cache sweep", zap.String("prefix", p), zap.Int("deleted", n))
	}
}

func (c *Cache) fail(ctx context.Context, op, key string, err error) {
	c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	c.log.Warn("cache operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}
