package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/studyspot/internal/config"
)

func setupRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays 0
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
		Prefix:       "test:event:",
	}

	store, err := OpenRedis(cfg, ttl)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func assertSeen(t *testing.T, store Store, key string, want bool) {
	t.Helper()

	got, err := store.Seen(context.Background(), key)
	if err != nil {
		t.Fatalf("Seen(%q) failed: %v", key, err)
	}
	if got != want {
		t.Errorf("Seen(%q) = %v, want %v", key, got, want)
	}
}

func TestKey(t *testing.T) {
	if got := Key("view_submission", "T123"); got != "view_submission:T123" {
		t.Errorf("Key() = %q", got)
	}
}

func TestMemoryStore_Seen(t *testing.T) {
	store := NewMemoryStore(16, time.Minute)

	assertSeen(t, store, "slash:T1", false)
	assertSeen(t, store, "slash:T1", true)
	assertSeen(t, store, "slash:T2", false)

	if store.Len() != 2 {
		t.Errorf("Expected 2 keys, got %d", store.Len())
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(16, 50*time.Millisecond)

	assertSeen(t, store, "slash:T1", false)
	time.Sleep(150 * time.Millisecond)
	assertSeen(t, store, "slash:T1", false)
}

func TestMemoryStore_Eviction(t *testing.T) {
	store := NewMemoryStore(2, time.Minute)

	assertSeen(t, store, "a", false)
	assertSeen(t, store, "b", false)
	assertSeen(t, store, "c", false)

	// "a" was the least recently used entry
	assertSeen(t, store, "a", false)
}

func TestMemoryStore_ConcurrentFirstCallerWins(t *testing.T) {
	store := NewMemoryStore(16, time.Minute)

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, err := store.Seen(context.Background(), "view_submission:T1")
			if err == nil && !seen {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := firsts.Load(); n != 1 {
		t.Errorf("Expected exactly one first caller, got %d", n)
	}
}

func TestRedisStore_Seen(t *testing.T) {
	store, mr := setupRedisStore(t, time.Minute)

	assertSeen(t, store, "slash:T1", false)
	assertSeen(t, store, "slash:T1", true)

	if !mr.Exists("test:event:slash:T1") {
		t.Error("Expected prefixed key in Redis")
	}
	if ttl := mr.TTL("test:event:slash:T1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected TTL up to one minute, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	assertSeen(t, store, "slash:T1", false)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := setupRedisStore(t, time.Minute)
	mr.Close()

	if _, err := store.Seen(context.Background(), "slash:T1"); err == nil {
		t.Error("Expected an error with Redis down")
	}
}

func TestOpen(t *testing.T) {
	store, err := Open(config.DedupeConfig{Backend: "memory", Size: 8, TTL: "1m"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("Expected *MemoryStore, got %T", store)
	}

	if _, err := Open(config.DedupeConfig{Backend: "memcached", TTL: "1m"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := Open(config.DedupeConfig{Backend: "memory", TTL: "soon"}); err == nil {
		t.Error("Expected error for invalid ttl")
	}
}
