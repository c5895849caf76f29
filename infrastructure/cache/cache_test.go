package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := NewCache(DefaultConfig())

	c.Set("k1", "v1", time.Minute)
	v, ok := c.Get("k1")
	if !ok || v != "v1" {
		t.Errorf("Get(k1) = %v, %v; want v1, true", v, ok)
	}
}

func TestCache_Expiration(t *testing.T) {
	c := NewCache(DefaultConfig())

	c.Set("k1", "v1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k1"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k1", "v1", time.Minute)
	c.Invalidate("k1")

	if _, ok := c.Get("k1"); ok {
		t.Error("expected invalidated entry to miss")
	}
}

func TestCache_InvalidatePattern(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("ep:1:retrieval", "a", time.Minute)
	c.Set("ep:1:summary", "b", time.Minute)
	c.Set("ep:2:retrieval", "c", time.Minute)

	c.InvalidatePattern("ep:1:")

	if _, ok := c.Get("ep:1:retrieval"); ok {
		t.Error("expected ep:1:retrieval to be invalidated")
	}
	if _, ok := c.Get("ep:2:retrieval"); !ok {
		t.Error("expected ep:2:retrieval to survive")
	}
}

func TestCache_InvalidateVersion(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k1", "v1", time.Minute)

	before := c.GetCurrentVersion()
	c.InvalidateVersion()

	if c.GetCurrentVersion() != before+1 {
		t.Error("expected version to increment")
	}
	if _, ok := c.Get("k1"); ok {
		t.Error("expected all entries dropped after InvalidateVersion")
	}
}

func TestCache_Size(t *testing.T) {
	c := NewCache(DefaultConfig())
	c.Set("k1", "v1", time.Minute)
	c.Set("k2", "v2", time.Minute)

	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestTTLCache(t *testing.T) {
	c := NewTTLCache(time.Minute, "embed:")
	ctx := context.Background()

	c.Set(ctx, "hash1", []float32{0.1, 0.2})
	v, ok := c.Get(ctx, "hash1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if vec, ok := v.([]float32); !ok || len(vec) != 2 {
		t.Errorf("unexpected value %v", v)
	}

	c.Delete(ctx, "hash1")
	if _, ok := c.Get(ctx, "hash1"); ok {
		t.Error("expected miss after Delete")
	}
}

func TestTTLCache_InvalidateAll(t *testing.T) {
	c := NewTTLCache(time.Minute, "embed:")
	ctx := context.Background()

	c.Set(ctx, "hash1", "a")
	c.Set(ctx, "hash2", "b")
	c.InvalidateAll()

	if c.Size() != 0 {
		t.Errorf("Size() = %d after InvalidateAll, want 0", c.Size())
	}
}
