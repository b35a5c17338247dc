// Package cache stores ranked results in Redis. Keys embed the index
// generation, so results from an older build are never served after a
// rebuild; they simply expire.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/metrics"
)

const keyPrefix = "bsbi:"

// Store is the key/value backend. *redis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one ranked result list. BM25 holds the scorer parameters
// the results were ranked with; Terms are the analyzed query terms in query
// order.
type Key struct {
	Index      string
	Generation uint32
	Scheme     ranker.Scheme
	BM25       ranker.BM25Params
	Limit      int
	Terms      []string
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s|%d|k1=%g|b=%g|limit=%d|%s",
		k.Scheme, k.Generation, k.BM25.K1, k.BM25.B, k.Limit, strings.Join(k.Terms, " "))
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.Index, hash[:16])
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached results for key. Backend and decode failures are
// logged and reported as a miss.
func (c *QueryCache) Get(ctx context.Context, key Key) ([]executor.Result, bool) {
	k := key.String()
	data, ok, err := c.store.Get(ctx, k)
	if err != nil {
		c.logger.Error("cache get failed", "key", k, "error", err)
	}
	if err != nil || !ok {
		c.miss()
		return nil, false
	}
	var results []executor.Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "key", k)
	return results, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, results []executor.Result) {
	k := key.String()
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute serves key from the cache or runs compute once for all
// concurrent callers asking for the same key. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() ([]executor.Result, error),
) ([]executor.Result, bool, error) {
	if results, ok := c.Get(ctx, key); ok {
		return results, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]executor.Result), false, nil
}

// Invalidate drops every cached entry of the named index.
func (c *QueryCache) Invalidate(ctx context.Context, index string) (int64, error) {
	deleted, err := c.store.DeleteByPattern(ctx, keyPrefix+index+":*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache of %s: %w", index, err)
	}
	c.logger.Info("cache invalidated", "index", index, "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// Searcher answers queries through a QueryCache.
type Searcher struct {
	session *executor.Session
	cache   *QueryCache
	index   string
}

func NewSearcher(session *executor.Session, cache *QueryCache, index string) *Searcher {
	return &Searcher{session: session, cache: cache, index: index}
}

// Query has the semantics of executor.Session.Query. A nil cache queries
// the session directly.
func (s *Searcher) Query(ctx context.Context, text string, scheme ranker.Scheme, k int) ([]executor.Result, bool, error) {
	if s.cache == nil {
		results, err := s.session.Query(ctx, text, scheme, k)
		return results, false, err
	}
	key := Key{
		Index:      s.index,
		Generation: s.session.Generation(),
		Scheme:     scheme,
		BM25:       s.session.BM25(),
		Limit:      k,
		Terms:      s.session.Terms(text),
	}
	return s.cache.GetOrCompute(ctx, key, func() ([]executor.Result, error) {
		return s.session.Query(ctx, text, scheme, k)
	})
}
