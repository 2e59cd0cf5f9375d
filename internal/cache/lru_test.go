package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)
	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	c.Set("a", "2")
	if v, _ := c.Get("a"); v != "2" || c.Size() != 1 {
		t.Fatalf("overwrite failed: %q size=%d", v, c.Size())
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("unexpected hit for missing key")
	}
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := NewLRUCache[int](2, time.Minute, WithEvictHook[int](func(key string, reason EvictReason) {
		if reason != EvictCapacity {
			t.Errorf("unexpected reason %s", reason)
		}
		evicted = append(evicted, key)
	}))
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b becomes least recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("unexpected evictions: %v", evicted)
	}
	if got := c.Values(); len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Fatalf("Values() = %v, want [3 1]", got)
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	expired := 0
	c := NewLRUCache[int](10, time.Minute,
		WithClock[int](clock.Now),
		WithEvictHook[int](func(string, EvictReason) { expired++ }))

	c.Set("a", 1)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)
	c.Set("b", 3) // refreshes TTL
	clock.Advance(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatal("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 3 {
		t.Fatalf("b should be live, got %d %v", v, ok)
	}
	if got := c.Values(); len(got) != 1 {
		t.Fatalf("Values() = %v", got)
	}
	clock.Advance(time.Minute)
	if n := c.CleanExpired(); n != 1 || c.Size() != 0 {
		t.Fatalf("CleanExpired() = %d, size %d", n, c.Size())
	}
	if expired != 2 {
		t.Fatalf("expected 2 expiry evictions, got %d", expired)
	}
}

func TestLRUCacheDeleteSkipsHook(t *testing.T) {
	called := false
	c := NewLRUCache[int](0, time.Minute, WithEvictHook[int](func(string, EvictReason) { called = true }))
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("a")
	if called || c.Size() != 0 {
		t.Fatalf("delete should be silent: called=%v size=%d", called, c.Size())
	}
}

func TestManagerCleanAllAndStop(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewLRUCache[int](10, time.Minute, WithClock[int](clock.Now))
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.Stop() // no-op before start

	m = NewManager()
	m.Register(c)
	m.StartCleanup(context.Background(), time.Hour)
	clock.Advance(2 * time.Minute)
	if n := m.CleanAll(); n != 1 {
		t.Fatalf("CleanAll() = %d, want 1", n)
	}
	m.Stop()
	m.Stop()
}

func TestLRUCacheConcurrentAccess(t *testing.T) {
	c := NewLRUCache[int](8, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + (n+j)%12))
				c.Set(key, j)
				c.Get(key)
				c.Values()
			}
		}(i)
	}
	wg.Wait()
	if c.Size() > 8 {
		t.Fatalf("size %d exceeds capacity", c.Size())
	}
}
