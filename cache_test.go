package renteasy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T, opts ...CacheOption) *Cache {
	t.Helper()
	c := NewCache(opts...)
	t.Cleanup(c.Close)
	return c
}

func TestGetOrFetchCachesValue(t *testing.T) {
	c := newTestCache(t)
	var fetches atomic.Int32

	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		return "listing", nil
	}

	first, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{})
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache {
		t.Error("first call should not be a cache hit")
	}

	second, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{})
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache {
		t.Error("second call should be a cache hit")
	}
	if second.Value != "listing" {
		t.Errorf("cached value = %v", second.Value)
	}
	if fetches.Load() != 1 {
		t.Errorf("fetch count = %d, want 1", fetches.Load())
	}
}

func TestGetOrFetchDeduplicatesConcurrentCallers(t *testing.T) {
	c := newTestCache(t)

	const callers = 8
	var fetches atomic.Int32
	var started sync.WaitGroup
	release := make(chan struct{})

	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		<-release
		return "shared", nil
	}

	results := make([]FetchResult, callers)
	errs := make([]error, callers)
	var done sync.WaitGroup

	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{})
		}(i)
	}

	started.Wait()
	// Give the goroutines a beat to reach the in-flight fetch before it
	// completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	if fetches.Load() != 1 {
		t.Fatalf("fetch count = %d, want 1", fetches.Load())
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Value != "shared" {
			t.Errorf("caller %d value = %v", i, results[i].Value)
		}
	}
}

func TestExpiredEntryNotServed(t *testing.T) {
	c := newTestCache(t, WithCacheCleanupInterval(0))
	var fetches atomic.Int32

	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		return "v", nil
	}

	if _, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{TTL: 10 * time.Millisecond}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(25 * time.Millisecond)

	result, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{TTL: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if result.FromCache {
		t.Error("expired entry must never be served")
	}
	if fetches.Load() != 2 {
		t.Errorf("fetch count = %d, want 2", fetches.Load())
	}
}

func TestForceBypassesCache(t *testing.T) {
	c := newTestCache(t)
	var fetches atomic.Int32

	fetch := func(context.Context) (any, error) {
		return int(fetches.Add(1)), nil
	}

	if _, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{}); err != nil {
		t.Fatal(err)
	}
	result, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.FromCache {
		t.Error("forced fetch should not report a cache hit")
	}
	if result.Value != 2 {
		t.Errorf("forced value = %v, want 2", result.Value)
	}
}

func TestFailedFetchNotCached(t *testing.T) {
	c := newTestCache(t)
	boom := errors.New("upstream down")
	calls := 0

	fetch := func(context.Context) (any, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	if _, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{}); !errors.Is(err, boom) {
		t.Fatalf("first call error = %v, want upstream error", err)
	}
	if c.Has("k") {
		t.Error("failed fetch must not populate the cache")
	}

	result, err := c.GetOrFetch(context.Background(), "k", fetch, FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Value != "ok" {
		t.Errorf("value after recovery = %v", result.Value)
	}
}

func TestInvalidateExactAndWildcard(t *testing.T) {
	c := newTestCache(t)
	c.Set("GET:/properties", 1, FetchOptions{})
	c.Set("GET:/properties?city=oslo", 2, FetchOptions{})
	c.Set("GET:/bookings", 3, FetchOptions{})

	if got := c.Invalidate("GET:/bookings"); got != 1 {
		t.Errorf("exact invalidate = %d, want 1", got)
	}
	if got := c.Invalidate("GET:/properties*"); got != 2 {
		t.Errorf("wildcard invalidate = %d, want 2", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
	if got := c.Invalidate("GET:/missing"); got != 0 {
		t.Errorf("invalidate missing = %d, want 0", got)
	}
}

func TestInvalidateByTag(t *testing.T) {
	c := newTestCache(t)
	c.Set("k1", 1, FetchOptions{Tags: []string{"properties", "search"}})
	c.Set("k2", 2, FetchOptions{Tags: []string{"search"}})
	c.Set("k3", 3, FetchOptions{})

	if got := c.InvalidateByTag("properties"); got != 1 {
		t.Errorf("InvalidateByTag(properties) = %d, want 1", got)
	}
	if c.Has("k1") {
		t.Error("k1 should be gone")
	}
	if !c.Has("k2") || !c.Has("k3") {
		t.Error("entries without the tag must survive")
	}

	if got := c.InvalidateByTag("search"); got != 1 {
		t.Errorf("InvalidateByTag(search) = %d, want 1", got)
	}
	if got := c.InvalidateByTag("unknown"); got != 0 {
		t.Errorf("InvalidateByTag(unknown) = %d, want 0", got)
	}
}

func TestEvictionOldestFirst(t *testing.T) {
	c := newTestCache(t, WithCacheMaxEntries(3))
	c.Set("a", 1, FetchOptions{})
	c.Set("b", 2, FetchOptions{})
	c.Set("c", 3, FetchOptions{})
	c.Set("d", 4, FetchOptions{})

	if c.Has("a") {
		t.Error("oldest entry should have been evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if !c.Has(key) {
			t.Errorf("entry %q should survive", key)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
}

func TestSetReplaceRefreshesInsertionOrder(t *testing.T) {
	c := newTestCache(t, WithCacheMaxEntries(2))
	c.Set("a", 1, FetchOptions{})
	c.Set("b", 2, FetchOptions{})
	c.Set("a", 3, FetchOptions{}) // re-insert moves a to the back
	c.Set("c", 4, FetchOptions{})

	if c.Has("b") {
		t.Error("b should have been evicted as the oldest entry")
	}
	if v, ok := c.Lookup("a"); !ok || v != 3 {
		t.Errorf("a = %v, %v, want 3", v, ok)
	}
}

func TestCacheStats(t *testing.T) {
	c := newTestCache(t, WithCacheCleanupInterval(0))
	c.Set("live", "x", FetchOptions{TTL: time.Hour, Tags: []string{"a"}})
	c.Set("dead", "y", FetchOptions{TTL: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	stats := c.Stats()
	if stats.TotalEntries != 2 {
		t.Errorf("TotalEntries = %d, want 2", stats.TotalEntries)
	}
	if stats.ActiveEntries != 1 || stats.ExpiredEntries != 1 {
		t.Errorf("Active/Expired = %d/%d, want 1/1", stats.ActiveEntries, stats.ExpiredEntries)
	}
	if stats.TagCount != 1 {
		t.Errorf("TagCount = %d, want 1", stats.TagCount)
	}
	if stats.EstimatedSizeBytes <= 0 {
		t.Error("EstimatedSizeBytes should be positive")
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(t)
	c.Set("a", 1, FetchOptions{Tags: []string{"t"}})
	c.Set("b", 2, FetchOptions{})
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", c.Len())
	}
	if got := c.InvalidateByTag("t"); got != 0 {
		t.Errorf("tag index should be empty after Clear, removed %d", got)
	}
}

func TestJanitorSweepsExpired(t *testing.T) {
	c := newTestCache(t, WithCacheCleanupInterval(10*time.Millisecond))
	c.Set("k", "v", FetchOptions{TTL: time.Millisecond})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("janitor did not reclaim the expired entry")
}
