package renteasy

import (
	"container/list"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is a key-value response cache with per-entry TTL, tag-based
// invalidation, in-flight fetch deduplication and bounded-size eviction.
// It is safe for concurrent use.
//
// Three invariants hold at all times: an expired value is never returned,
// at most one underlying fetch is outstanding per key, and a failed fetch
// never populates an entry.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	order    *list.List // keys in insertion order, oldest at front
	tagIndex map[string]map[string]struct{}
	pending  map[string]struct{}

	maxEntries      int
	defaultTTL      time.Duration
	cleanupInterval time.Duration

	sf        singleflight.Group
	stop      chan struct{}
	closeOnce sync.Once
}

type cacheEntry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
	tags      map[string]struct{}
	size      int64
	elem      *list.Element
}

// FetchOptions controls a single GetOrFetch call.
type FetchOptions struct {
	// TTL for the stored entry; the cache default applies when zero.
	TTL time.Duration
	// Tags to index the entry under for bulk invalidation.
	Tags []string
	// Force drops any existing entry before fetching.
	Force bool
}

// FetchResult is the outcome of GetOrFetch.
type FetchResult struct {
	Value any
	// FromCache is true when a live entry satisfied the call without fetching.
	FromCache bool
	// Shared is true when this call joined another caller's in-flight fetch.
	Shared bool
}

// CacheStats is a point-in-time snapshot of cache state.
type CacheStats struct {
	TotalEntries       int
	ActiveEntries      int
	ExpiredEntries     int
	PendingRequests    int
	TagCount           int
	EstimatedSizeBytes int64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheMaxEntries bounds the number of entries; at capacity the oldest
// entry by insertion time is evicted before each insert. Zero means
// unbounded.
func WithCacheMaxEntries(n int) CacheOption {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithCacheDefaultTTL sets the TTL applied when FetchOptions carries none.
func WithCacheDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

// WithCacheCleanupInterval sets the background sweep interval for expired
// entries. Zero disables the sweeper; expired entries are still never
// served, they are just reclaimed lazily.
func WithCacheCleanupInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.cleanupInterval = d
	}
}

const (
	defaultCacheTTL        = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// NewCache creates a Cache and starts its background sweeper. Call Close
// when the cache is no longer needed.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:         make(map[string]*cacheEntry),
		order:           list.New(),
		tagIndex:        make(map[string]map[string]struct{}),
		pending:         make(map[string]struct{}),
		defaultTTL:      defaultCacheTTL,
		cleanupInterval: defaultCleanupInterval,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cleanupInterval > 0 {
		go c.janitor()
	}
	return c
}

// GetOrFetch returns the cached value for key or computes it via fetch.
// Concurrent callers for the same key share one fetch and observe the same
// result. Fetch failures are returned to all waiters and never cached.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (any, error), opts FetchOptions) (FetchResult, error) {
	if opts.Force {
		c.Delete(key)
	} else if value, ok := c.lookup(key); ok {
		return FetchResult{Value: value, FromCache: true}, nil
	}

	res, err, shared := c.sf.Do(key, func() (any, error) {
		c.mu.Lock()
		c.pending[key] = struct{}{}
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			delete(c.pending, key)
			c.mu.Unlock()
		}()

		// A racing owner may have stored the value between our lookup and
		// winning the flight.
		if value, ok := c.lookup(key); ok {
			return FetchResult{Value: value, FromCache: true}, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return FetchResult{}, err
		}
		c.Set(key, value, opts)
		return FetchResult{Value: value}, nil
	})
	if err != nil {
		return FetchResult{}, err
	}

	result := res.(FetchResult)
	result.Shared = shared
	return result, nil
}

// Set stores value under key, replacing any existing entry and evicting the
// oldest entry when the cache is at capacity.
func (c *Cache) Set(key string, value any, opts FetchOptions) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.removeLocked(key, existing)
	}
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	now := time.Now()
	entry := &cacheEntry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
		tags:      toTagSet(opts.Tags),
		size:      estimateSize(key, value),
	}
	entry.elem = c.order.PushBack(key)
	c.entries[key] = entry

	for tag := range entry.tags {
		keys := c.tagIndex[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			c.tagIndex[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// Lookup returns the live cached value for key, if any. Expired entries are
// treated as absent and reclaimed.
func (c *Cache) Lookup(key string) (any, bool) {
	return c.lookup(key)
}

// Has reports whether a live entry exists for key.
func (c *Cache) Has(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Delete removes the entry for key, reporting whether one existed.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(key, entry)
	return true
}

// Clear removes all entries. In-flight fetches are unaffected; their results
// will repopulate the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.tagIndex = make(map[string]map[string]struct{})
	c.order.Init()
}

// Invalidate deletes entries whose key matches pattern and returns the count
// removed. A pattern without wildcards matches exactly one key; a pattern
// containing `*` matches any run of characters at that position.
func (c *Cache) Invalidate(pattern string) int {
	if !strings.Contains(pattern, "*") {
		if c.Delete(pattern) {
			return 1
		}
		return 0
	}

	re := regexp.MustCompile("^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$")
	return c.InvalidateRegexp(re)
}

// InvalidateRegexp deletes entries whose key matches re and returns the
// count removed.
func (c *Cache) InvalidateRegexp(re *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for key, entry := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(key, entry)
			count++
		}
	}
	return count
}

// InvalidateByTag deletes all entries tagged with tag and returns the count
// removed. Cost is proportional to the number of matching entries.
func (c *Cache) InvalidateByTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.tagIndex[tag]
	if !ok {
		return 0
	}

	count := 0
	for key := range keys {
		if entry, ok := c.entries[key]; ok {
			c.removeLocked(key, entry)
			count++
		}
	}
	return count
}

// Stats returns a snapshot of the cache state.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	stats := CacheStats{
		TotalEntries:    len(c.entries),
		PendingRequests: len(c.pending),
		TagCount:        len(c.tagIndex),
	}
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			stats.ExpiredEntries++
		} else {
			stats.ActiveEntries++
		}
		stats.EstimatedSizeBytes += entry.size
	}
	return stats
}

// Len returns the current number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(key, entry)
		return nil, false
	}
	return entry.value, true
}

// removeLocked deletes key from the entry map, the insertion-order list and
// the tag index. Caller holds c.mu.
func (c *Cache) removeLocked(key string, entry *cacheEntry) {
	delete(c.entries, key)
	c.order.Remove(entry.elem)
	for tag := range entry.tags {
		if keys, ok := c.tagIndex[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.tagIndex, tag)
			}
		}
	}
}

// evictOldestLocked drops the entry that was inserted earliest. Caller
// holds c.mu.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	if entry, ok := c.entries[key]; ok {
		c.removeLocked(key, entry)
	}
}

// janitor sweeps expired entries on a fixed interval. Best-effort
// housekeeping: correctness never depends on it since expired entries are
// not served either way.
func (c *Cache) janitor() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			c.removeLocked(key, entry)
		}
	}
}

func toTagSet(tags []string) map[string]struct{} {
	if len(tags) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
	}
	return set
}

// estimateSize is a rough accounting of an entry's memory footprint, good
// enough for the stats surface.
func estimateSize(key string, value any) int64 {
	const entryOverhead = 120
	size := int64(len(key)) + entryOverhead
	switch v := value.(type) {
	case nil:
	case string:
		size += int64(len(v))
	case []byte:
		size += int64(len(v))
	case json.RawMessage:
		size += int64(len(v))
	case *Response:
		if v != nil {
			size += int64(len(v.Data))
		}
	default:
		if data, err := json.Marshal(v); err == nil {
			size += int64(len(data))
		}
	}
	return size
}
