// Package recordcache caches the encoded extraction batches of a document in
// Redis, keyed by document id, content digest and request fingerprint, and
// collapses concurrent computations of the same key.
package recordcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/resilience"
)

const keyPrefix = "records:"

// Store is the subset of the Redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// IsMiss reports whether a Store error means the key is absent.
type IsMiss func(error) bool

type RecordCache struct {
	store   Store
	isMiss  IsMiss
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a cache over store. A nil isMiss treats redis.Nil as a miss.
func New(store Store, isMiss IsMiss, ttl time.Duration, m *metrics.Metrics) *RecordCache {
	if isMiss == nil {
		isMiss = pkgredis.IsNilError
	}
	return &RecordCache{
		store:   store,
		isMiss:  isMiss,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "record-cache"),
	}
}

// WithBreaker routes store calls through a circuit breaker so an
// unreachable Redis is skipped instead of being waited on for every
// document. Misses do not count as failures.
func (c *RecordCache) WithBreaker(cfg resilience.CircuitBreakerConfig) *RecordCache {
	cfg.IsFailure = func(err error) bool { return err != nil && !c.isMiss(err) }
	c.breaker = resilience.NewCircuitBreaker("record-cache", cfg)
	return c
}

func (c *RecordCache) call(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// Get returns the cached batches for version digest of docID under req.
// Store failures and undecodable values count as misses.
func (c *RecordCache) Get(ctx context.Context, docID, digest string, req extract.Request) ([]json.RawMessage, bool) {
	key := BuildKey(docID, digest, req)
	var data []byte
	err := c.call(func() (err error) {
		data, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			c.logger.Debug("cache bypassed", "key", key, "error", err)
		case !c.isMiss(err):
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.metrics.CacheMiss()
		return nil, false
	}
	var batches []json.RawMessage
	if err := json.Unmarshal(data, &batches); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.metrics.CacheMiss()
		return nil, false
	}
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "doc_id", docID, "key", key)
	return batches, true
}

func (c *RecordCache) Set(ctx context.Context, docID, digest string, req extract.Request, batches []json.RawMessage) {
	key := BuildKey(docID, digest, req)
	data, err := json.Marshal(batches)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.call(func() error { return c.store.Set(ctx, key, data, c.ttl) })
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		c.logger.Debug("cache write skipped", "key", key)
	case err != nil:
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached batches of this version of docID or
// computes and caches them. A computed version replaces every other cached
// version of docID for the same request. The boolean reports a cache hit.
func (c *RecordCache) GetOrCompute(
	ctx context.Context,
	docID, digest string,
	req extract.Request,
	computeFn func() ([]json.RawMessage, error),
) ([]json.RawMessage, bool, error) {
	if batches, ok := c.Get(ctx, docID, digest, req); ok {
		return batches, true, nil
	}
	key := BuildKey(docID, digest, req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if batches, ok := c.Get(ctx, docID, digest, req); ok {
			return batches, nil
		}
		batches, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.dropVersions(ctx, docID, req)
		c.Set(ctx, docID, digest, req, batches)
		return batches, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]json.RawMessage), false, nil
}

// dropVersions deletes the cached batches of every version of docID under
// req. Failures are logged; stale versions still expire with the TTL.
func (c *RecordCache) dropVersions(ctx context.Context, docID string, req extract.Request) {
	pattern := keyPrefix + docID + ":*:" + req.Key()
	var deleted int64
	err := c.call(func() (err error) {
		deleted, err = c.store.FlushByPattern(ctx, pattern)
		return err
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		c.logger.Debug("cache cleanup skipped", "pattern", pattern)
	case err != nil:
		c.logger.Error("cache cleanup failed", "pattern", pattern, "error", err)
	case deleted > 0:
		c.logger.Info("superseded cache entries dropped", "doc_id", docID, "keys_deleted", deleted)
	}
}

// BuildKey places a document version and request under the document's key
// space: records:<docID>:<digest>:<requestKey>.
func BuildKey(docID, digest string, req extract.Request) string {
	return keyPrefix + docID + ":" + digest + ":" + req.Key()
}
