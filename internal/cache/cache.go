// Package cache implements the read-through comparison cache: a TTL
// key-value store behind single-flight computation. Keys are ASCII strings of
// the form "<kind>:<grid cell>:<time bucket>".
package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ondamlab/yesterday/internal/observability"
)

// Store is the minimal TTL key-value contract (SETEX-equivalent plus get).
// Implemented by the redis adapter and by the in-process MemoryStore.
type Store interface {
	// Get returns the value and true when the key exists and has not expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// SetEx stores the value with a TTL. An entry must never outlive its TTL.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// Cache is a read-through cache with single-flight semantics: concurrent
// callers of the same key share one computation, compute failures are
// propagated but never cached, and a store outage degrades to a direct
// compute rather than an error.
type Cache struct {
	store   Store
	group   singleflight.Group
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Cache over the given store.
func New(store Store, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	return &Cache{store: store, logger: logger, metrics: metrics}
}

// GetOrCompute returns the cached value for key when present, otherwise runs
// compute at most once per key across concurrent callers, stores a successful
// result with the TTL, and returns it.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (string, error)) (string, error) {
	kind := keyKind(key)

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, ok, err := c.store.Get(ctx, key)
		if err != nil {
			// Cache outage: always safe to fall through to the upstream fetch.
			c.logger.Warn("cache store get failed, treating as miss", "key", key, "error", err)
			c.metrics.CacheLookups.WithLabelValues(kind, "error").Inc()
		} else if ok {
			c.metrics.CacheLookups.WithLabelValues(kind, "hit").Inc()
			return value, nil
		} else {
			c.metrics.CacheLookups.WithLabelValues(kind, "miss").Inc()
		}

		value, err = compute(ctx)
		if err != nil {
			// Never cache a failure; the next caller retries upstream.
			return "", err
		}
		if err := c.store.SetEx(ctx, key, value, ttl); err != nil {
			c.logger.Warn("cache store set failed", "key", key, "error", err)
		}
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// keyKind extracts the query-kind prefix used as a metric label.
func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "unknown"
}
