// Package cache implements the layered completion cache: named stores of
// TTL-bounded entries with a shared memory budget, pluggable eviction,
// tag-based invalidation, and a background expiry sweep.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Eviction strategies.
const (
	StrategyLRU = "lru"
	StrategyLFU = "lfu"
	StrategyTTL = "ttl"
)

// Cleanup evicts evictFraction of each store's entries per round, by the
// configured strategy, until the pending insert fits the budget.
const evictFraction = 0.2

// Config bounds the cache.
type Config struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	MaxBytes        int64
	Strategy        string
}

type entry struct {
	data         any
	createdAt    time.Time
	expiresAt    time.Time
	ttl          time.Duration
	accessCount  int64
	lastAccessed time.Time
	size         int64
	tags         []string
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

type store struct {
	entries map[string]*entry
	bytes   int64

	hits      int64
	misses    int64
	evictions int64
}

// Cache is the process-wide completion cache. All mutation happens under
// one mutex so entry replacement is atomic from a reader's perspective.
type Cache struct {
	mu     sync.Mutex
	stores map[string]*store

	defaultTTL      time.Duration
	cleanupInterval time.Duration
	maxBytes        int64
	strategy        string

	sweepReset chan struct{}
	logger     *slog.Logger
}

// New creates a Cache, applying defaults for zero config values.
func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 << 20
	}
	switch cfg.Strategy {
	case StrategyLRU, StrategyLFU, StrategyTTL:
	default:
		cfg.Strategy = StrategyLRU
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		stores:          make(map[string]*store),
		defaultTTL:      cfg.DefaultTTL,
		cleanupInterval: cfg.CleanupInterval,
		maxBytes:        cfg.MaxBytes,
		strategy:        cfg.Strategy,
		sweepReset:      make(chan struct{}, 1),
		logger:          logger,
	}
}

// Key builds the canonical cache key for an extraction operation.
func Key(operation, root, query string) string {
	return fmt.Sprintf("%s|%s|%s", operation, root, query)
}

// SetOption configures a Set call.
type SetOption func(*entry)

// WithTTL overrides the default TTL for one entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(e *entry) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithTags attaches invalidation tags to an entry.
func WithTags(tags ...string) SetOption {
	return func(e *entry) { e.tags = tags }
}

// Set stores value under (storeName, key). An insert that would exceed
// the memory budget first purges expired entries, then evicts entries by
// the configured strategy until the new entry fits.
func (c *Cache) Set(storeName, key string, value any, opts ...SetOption) {
	now := time.Now()
	e := &entry{
		data:         value,
		createdAt:    now,
		lastAccessed: now,
		ttl:          c.defaultTTL,
		size:         Estimate(value),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.expiresAt = e.createdAt.Add(e.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.store(storeName)
	if old, ok := st.entries[key]; ok {
		st.bytes -= old.size
		delete(st.entries, key)
	}

	if c.totalBytesLocked()+e.size > c.maxBytes {
		c.cleanupLocked(now, e.size)
	}

	st.entries[key] = e
	st.bytes += e.size
}

// GetOption configures a Get call.
type GetOption func(*getOpts)

type getOpts struct {
	extendTTL bool
}

// WithExtendTTL renews the entry's TTL from now on a hit.
func WithExtendTTL() GetOption {
	return func(o *getOpts) { o.extendTTL = true }
}

// Get returns the value under (storeName, key). An expired entry counts
// as a miss and is removed. Hits bump the access count and last-access
// time.
func (c *Cache) Get(storeName, key string, opts ...GetOption) (any, bool) {
	var o getOpts
	for _, opt := range opts {
		opt(&o)
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.store(storeName)
	e, ok := st.entries[key]
	if !ok {
		st.misses++
		return nil, false
	}
	if e.expired(now) {
		st.bytes -= e.size
		delete(st.entries, key)
		st.misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now
	if o.extendTTL {
		e.expiresAt = now.Add(e.ttl)
	}
	st.hits++
	return e.data, true
}

// Has reports whether a live entry exists without counting a hit or miss.
func (c *Cache) Has(storeName, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.stores[storeName]
	if !ok {
		return false
	}
	e, ok := st.entries[key]
	return ok && !e.expired(time.Now())
}

// Delete removes a single entry.
func (c *Cache) Delete(storeName, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.stores[storeName]
	if !ok {
		return false
	}
	e, ok := st.entries[key]
	if !ok {
		return false
	}
	st.bytes -= e.size
	delete(st.entries, key)
	return true
}

// Clear drops every entry in storeName, or in all stores when storeName
// is empty.
func (c *Cache) Clear(storeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if storeName == "" {
		for _, st := range c.stores {
			st.entries = make(map[string]*entry)
			st.bytes = 0
		}
		return
	}
	if st, ok := c.stores[storeName]; ok {
		st.entries = make(map[string]*entry)
		st.bytes = 0
	}
}

// InvalidateByTags removes every entry carrying at least one of the given
// tags. An empty storeName targets all stores. Returns the number of
// entries removed.
func (c *Cache) InvalidateByTags(storeName string, tags []string) int {
	if len(tags) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for name, st := range c.stores {
		if storeName != "" && name != storeName {
			continue
		}
		for key, e := range st.entries {
			for _, t := range e.tags {
				if _, ok := want[t]; ok {
					st.bytes -= e.size
					delete(st.entries, key)
					count++
					break
				}
			}
		}
	}
	return count
}

// SetDefaultTTL adjusts the TTL applied to future inserts. Tuner hook.
func (c *Cache) SetDefaultTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.defaultTTL = ttl
	c.mu.Unlock()
}

// DefaultTTL returns the TTL applied to inserts without WithTTL.
func (c *Cache) DefaultTTL() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultTTL
}

// SetCleanupInterval adjusts the background sweep interval. Tuner hook.
func (c *Cache) SetCleanupInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.cleanupInterval = d
	c.mu.Unlock()

	select {
	case c.sweepReset <- struct{}{}:
	default:
	}
}

// Start runs the background expiry sweep until ctx is cancelled. The
// sweep bounds worst-case memory growth even with no read traffic.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	interval := c.cleanupInterval
	c.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sweepReset:
			c.mu.Lock()
			interval = c.cleanupInterval
			c.mu.Unlock()
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(interval)
		case <-timer.C:
			removed := c.Sweep()
			if removed > 0 {
				c.logger.Debug("cache: sweep", slog.Int("removed", removed))
			}
			timer.Reset(interval)
		}
	}
}

// Sweep purges expired entries across all stores and returns the number
// removed.
func (c *Cache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, st := range c.stores {
		for key, e := range st.entries {
			if e.expired(now) {
				st.bytes -= e.size
				delete(st.entries, key)
				removed++
			}
		}
	}
	return removed
}

// TrimTo keeps at most n entries per store, dropping the least valuable
// by the configured strategy. Used under critical memory pressure.
func (c *Cache) TrimTo(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, st := range c.stores {
		over := len(st.entries) - n
		if over <= 0 {
			continue
		}
		for _, key := range c.victimsLocked(st, over) {
			if e, ok := st.entries[key]; ok {
				st.bytes -= e.size
				delete(st.entries, key)
				st.evictions++
				removed++
			}
		}
	}
	return removed
}

func (c *Cache) store(name string) *store {
	st, ok := c.stores[name]
	if !ok {
		st = &store{entries: make(map[string]*entry)}
		c.stores[name] = st
	}
	return st
}

func (c *Cache) totalBytesLocked() int64 {
	var total int64
	for _, st := range c.stores {
		total += st.bytes
	}
	return total
}

// cleanupLocked purges expired entries everywhere, then evicts remaining
// entries round by round until an insert of incoming bytes fits the
// budget. Stops early only when every store is empty.
func (c *Cache) cleanupLocked(now time.Time, incoming int64) {
	for _, st := range c.stores {
		for key, e := range st.entries {
			if e.expired(now) {
				st.bytes -= e.size
				delete(st.entries, key)
			}
		}
	}

	for c.totalBytesLocked()+incoming > c.maxBytes {
		evicted := false
		for _, st := range c.stores {
			if len(st.entries) == 0 {
				continue
			}
			n := int(float64(len(st.entries)) * evictFraction)
			if n == 0 {
				n = 1
			}
			for _, key := range c.victimsLocked(st, n) {
				if e, ok := st.entries[key]; ok {
					st.bytes -= e.size
					delete(st.entries, key)
					st.evictions++
					evicted = true
				}
			}
		}
		if !evicted {
			return
		}
	}
}

// victimsLocked returns up to n keys ordered by eviction preference for
// the configured strategy.
func (c *Cache) victimsLocked(st *store, n int) []string {
	type cand struct {
		key string
		e   *entry
	}
	cands := make([]cand, 0, len(st.entries))
	for key, e := range st.entries {
		cands = append(cands, cand{key, e})
	}

	switch c.strategy {
	case StrategyLFU:
		sort.Slice(cands, func(i, j int) bool {
			if cands[i].e.accessCount != cands[j].e.accessCount {
				return cands[i].e.accessCount < cands[j].e.accessCount
			}
			return cands[i].e.lastAccessed.Before(cands[j].e.lastAccessed)
		})
	case StrategyTTL:
		sort.Slice(cands, func(i, j int) bool {
			return cands[i].e.expiresAt.Before(cands[j].e.expiresAt)
		})
	default: // LRU
		sort.Slice(cands, func(i, j int) bool {
			return cands[i].e.lastAccessed.Before(cands[j].e.lastAccessed)
		})
	}

	if n > len(cands) {
		n = len(cands)
	}
	keys := make([]string, 0, n)
	for _, cd := range cands[:n] {
		keys = append(keys, cd.key)
	}
	return keys
}
