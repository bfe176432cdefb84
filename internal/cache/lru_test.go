package cache

import (
	"testing"
	"time"
)

func TestLRUCacheBasics(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("expected a=1, got %q (%v)", v, ok)
	}

	// "b" is now the least recently used and gets evicted.
	c.Set("c", "3")
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be present")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should miss")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("expected 1 remaining expired entry cleaned, got %d", removed)
	}
	if c.Size() != 0 {
		t.Errorf("expected empty cache, got %d", c.Size())
	}
}

func TestLRUCachePurge(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Purge()
	if c.Size() != 0 {
		t.Errorf("expected empty cache after purge, got %d", c.Size())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("purged entry should miss")
	}
	c.Set("a", 3)
	if v, _ := c.Get("a"); v != 3 {
		t.Error("cache should be usable after purge")
	}
}
