package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	c := New[string](time.Hour, clock.Now)

	c.Set("PROJ-1", "result")
	if v, ok := c.Get("PROJ-1"); !ok || v != "result" {
		t.Fatalf("expected hit with %q, got %q ok=%v", "result", v, ok)
	}

	clock.Advance(59 * time.Minute)
	if _, ok := c.Get("PROJ-1"); !ok {
		t.Errorf("expected entry to survive before ttl")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get("PROJ-1"); ok {
		t.Errorf("expected entry to expire at ttl")
	}
	if n := c.Sweep(); n != 1 {
		t.Errorf("expected 1 swept entry, got %d", n)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCacheReplaceAndDelete(t *testing.T) {
	c := New[int](time.Hour, nil)
	c.Set("k", 1)
	c.Set("k", 2)
	if v, _ := c.Get("k"); v != 2 {
		t.Errorf("expected replaced value 2, got %d", v)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Errorf("expected miss after delete")
	}
}

func TestCacheDeleteFunc(t *testing.T) {
	c := New[string](time.Hour, nil)
	c.Set("a", "alice")
	c.Set("b", "alice")
	c.Set("c", "bob")

	if n := c.DeleteFunc(func(_ string, v string) bool { return v == "alice" }); n != 2 {
		t.Errorf("expected 2 entries dropped, got %d", n)
	}
	if _, ok := c.Get("a"); ok {
		t.Errorf("expected miss for a")
	}
	if v, ok := c.Get("c"); !ok || v != "bob" {
		t.Errorf("expected c to survive, got %q %v", v, ok)
	}
}

func TestCacheZeroTTLDisables(t *testing.T) {
	c := New[int](0, nil)
	c.Set("k", 1)
	if _, ok := c.Get("k"); ok {
		t.Errorf("expected zero ttl to disable caching")
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int](time.Hour, nil)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			c.Set(key, i)
			c.Get(key)
		}(i)
	}
	wg.Wait()
	if c.Len() != 5 {
		t.Errorf("expected 5 keys, got %d", c.Len())
	}
}
