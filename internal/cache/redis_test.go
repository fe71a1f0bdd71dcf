package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/campusqa/campusqa/internal/pkg/logger"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	backend, err := NewRedisBackend("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisBackend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return mr, backend
}

func TestNewRedisBackend_InvalidURL(t *testing.T) {
	_, err := NewRedisBackend("invalid://url")
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestNewRedisBackend_ConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisBackend("redis://" + addr); err == nil {
		t.Fatal("expected error for connection failure")
	}
}

func TestRedisBackend_SetGet(t *testing.T) {
	mr, b := newMiniRedis(t)
	ctx := context.Background()

	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty = %v, want ErrMiss", err)
	}

	if err := b.Set(ctx, "k", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get = %s", got)
	}
	if ttl := mr.TTL("k"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(time.Minute)
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after expiry = %v, want ErrMiss", err)
	}
}

func TestRedisBackend_IncrRefreshesTTL(t *testing.T) {
	mr, b := newMiniRedis(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := b.Incr(ctx, "pop", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != i {
			t.Errorf("Incr = %d, want %d", n, i)
		}
		mr.FastForward(30 * time.Second)
	}

	if ttl := mr.TTL("pop"); ttl != 30*time.Second {
		t.Errorf("TTL = %v, want 30s after refresh and 30s elapsed", ttl)
	}
}

func TestStore_RedisFailOpenWhenServerGone(t *testing.T) {
	mr, b := newMiniRedis(t)
	store := NewStore(b, DefaultConfig(), logger.Discard())
	ctx := context.Background()

	store.Put(ctx, "q", sampleRecord(), General)
	if _, ok := store.Get(ctx, "q", General); !ok {
		t.Fatal("expected hit while redis is up")
	}

	mr.Close()

	if _, ok := store.Get(ctx, "q", General); ok {
		t.Error("expected miss once redis is gone")
	}
	store.Put(ctx, "q", sampleRecord(), General)
	if n := store.IncrementPopularity(ctx, "q"); n != 0 {
		t.Errorf("IncrementPopularity = %d, want 0", n)
	}
	if err := store.Ping(ctx); err == nil {
		t.Error("Ping should fail once redis is gone")
	}
}
