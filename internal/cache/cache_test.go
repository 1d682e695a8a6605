package cache

import (
	"testing"
	"time"
)

func TestCache_GetSetExpire(t *testing.T) {
	c := New[[]string](time.Second)

	now := time.Now()
	c.now = func() time.Time { return now }

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set("k", []string{"a"})

	v, ok := c.Get("k")
	if !ok || len(v) != 1 || v[0] != "a" {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}

	now = now.Add(2 * time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be evicted, len=%d", c.Len())
	}
}

func TestCache_Clear(t *testing.T) {
	c := New[int](0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")

	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}

	c.Clear()

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected miss after Clear")
	}
}

func TestCache_SetIfGenerationSkipsAfterClear(t *testing.T) {
	c := New[int](time.Minute)

	gen := c.Generation()
	c.Clear()

	if c.SetIfGeneration("k", 1, gen) {
		t.Fatal("expected stale generation to be rejected")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("stale value was cached")
	}

	if !c.SetIfGeneration("k", 2, c.Generation()) {
		t.Fatal("expected current generation to be stored")
	}
	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Fatalf("expected 2, got %v %v", v, ok)
	}
}
