// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	c.Set(ctx, "k", []byte("v"), time.Minute)
	val, ok := c.Get(ctx, "k")
	if !ok || string(val) != "v" {
		t.Fatalf("Get() = %q, %v; want v, true", val, ok)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}

	stats := c.Stats(ctx)
	if stats.Hits != 1 || stats.Misses != 1 || stats.Sets != 1 || stats.CurrentSize != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMemoryCache_CopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)

	buf := []byte("abc")
	c.Set(ctx, "k", buf, time.Minute)
	buf[0] = 'x'

	val, _ := c.Get(ctx, "k")
	if string(val) != "abc" {
		t.Errorf("stored value changed with caller buffer: %q", val)
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(0)
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", []byte("v"), time.Second)
	now = now.Add(2 * time.Second)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if n := c.deleteExpired(); n != 1 {
		t.Errorf("deleteExpired() = %d, want 1", n)
	}
	if got := c.Stats(ctx).Evictions; got != 1 {
		t.Errorf("evictions = %d, want 1", got)
	}
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)

	c.Delete(ctx, "a")
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected a to be deleted")
	}
	c.Clear(ctx)
	if size := c.Stats(ctx).CurrentSize; size != 0 {
		t.Errorf("size after Clear = %d", size)
	}
}

func TestMemoryCache_JanitorStops(t *testing.T) {
	c := NewMemoryCache(5 * time.Millisecond)
	c.Set(context.Background(), "k", []byte("v"), time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Stats(context.Background()).CurrentSize != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not evict expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.Stop()
	c.Stop()
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Millisecond)
	defer c.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(ctx, "k", []byte("v"), time.Millisecond)
				c.Get(ctx, "k")
			}
		}()
	}
	wg.Wait()
}

func TestNoOpCache(t *testing.T) {
	ctx := context.Background()
	c := NewNoOpCache()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("no-op cache must never hit")
	}
	if stats := c.Stats(ctx); stats != (CacheStats{}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}
