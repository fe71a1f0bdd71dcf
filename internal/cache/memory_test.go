package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryBackend_Expiry(t *testing.T) {
	clock := &fakeClock{now: bucketStart}
	b := NewMemoryBackend(0)
	b.SetClock(clock.Now)
	defer b.Close()
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), 10*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, err := b.Get(ctx, "k"); err != nil || string(v) != "v" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	clock.Advance(10 * time.Second)
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after expiry err = %v, want ErrMiss", err)
	}
	if b.Len() != 0 {
		t.Errorf("expired entry not removed, Len = %d", b.Len())
	}
}

func TestMemoryBackend_IncrConcurrent(t *testing.T) {
	b := NewMemoryBackend(0)
	defer b.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Incr(ctx, "counter", time.Minute); err != nil {
				t.Errorf("Incr: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := b.Incr(ctx, "counter", time.Minute)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if n != 51 {
		t.Errorf("counter = %d, want 51", n)
	}
}

func TestMemoryBackend_IncrNonNumeric(t *testing.T) {
	b := NewMemoryBackend(0)
	defer b.Close()
	ctx := context.Background()

	_ = b.Set(ctx, "k", []byte("abc"), time.Minute)
	if _, err := b.Incr(ctx, "k", time.Minute); err == nil {
		t.Error("expected error incrementing non-numeric value")
	}
}

func TestMemoryBackend_CancelledContext(t *testing.T) {
	b := NewMemoryBackend(0)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get err = %v, want context.Canceled", err)
	}
	if err := b.Set(ctx, "k", nil, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Set err = %v, want context.Canceled", err)
	}
}

func TestMemoryBackend_Janitor(t *testing.T) {
	b := NewMemoryBackend(10 * time.Millisecond)
	defer b.Close()

	_ = b.Set(context.Background(), "k", []byte("v"), time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for b.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not purge expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryBackend_CloseIdempotent(t *testing.T) {
	b := NewMemoryBackend(time.Second)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
