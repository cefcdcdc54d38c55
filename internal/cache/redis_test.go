// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupMiniRedis creates a test Redis server using miniredis.
func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, newRedisCache(client, "test:", zerolog.Nop())
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)

	cache.Set(ctx, "entry", []byte(`{"id":"1_abc"}`), 5*time.Minute)

	val, found := cache.Get(ctx, "entry")
	if !found {
		t.Fatal("expected value to be found")
	}
	if string(val) != `{"id":"1_abc"}` {
		t.Errorf("unexpected value %s", val)
	}
	if !mr.Exists("test:entry") {
		t.Error("expected key to be stored under the prefix")
	}

	stats := cache.Stats(ctx)
	if stats.Hits != 1 || stats.Sets != 1 || stats.CurrentSize != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestRedisCache_Expiration(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)

	cache.Set(ctx, "k", []byte("v"), time.Second)
	mr.FastForward(2 * time.Second)

	if _, found := cache.Get(ctx, "k"); found {
		t.Error("expected key to expire")
	}
	if misses := cache.Stats(ctx).Misses; misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
}

func TestRedisCache_ClearOnlyTouchesPrefix(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)

	if err := mr.Set("other:key", "keep"); err != nil {
		t.Fatal(err)
	}
	cache.Set(ctx, "a", []byte("1"), time.Minute)
	cache.Set(ctx, "b", []byte("2"), time.Minute)

	cache.Clear(ctx)

	if mr.Exists("test:a") || mr.Exists("test:b") {
		t.Error("expected prefixed keys to be removed")
	}
	if !mr.Exists("other:key") {
		t.Error("foreign key must survive Clear")
	}
}

func TestRedisCache_Delete(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)

	cache.Set(ctx, "a", []byte("1"), time.Minute)
	cache.Delete(ctx, "a")
	if mr.Exists("test:a") {
		t.Error("expected key to be deleted")
	}
}

func TestRedisCache_ServerDown(t *testing.T) {
	ctx := context.Background()
	mr, cache := setupMiniRedis(t)
	mr.Close()

	cache.Set(ctx, "a", []byte("1"), time.Minute)
	if _, found := cache.Get(ctx, "a"); found {
		t.Error("expected miss when redis is unavailable")
	}
	if err := cache.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail")
	}
}

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	defer func() { _ = cache.Close() }()

	if cache.prefix != defaultKeySpan {
		t.Errorf("prefix = %q, want %q", cache.prefix, defaultKeySpan)
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisCache(context.Background(), RedisConfig{Addr: addr}, zerolog.Nop()); err == nil {
		t.Fatal("expected connection error")
	}
}
