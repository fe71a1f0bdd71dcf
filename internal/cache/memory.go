package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process expiring store for single-instance
// deployments and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryBackend creates a MemoryBackend. A janitor removes expired
// entries every sweep interval; zero disables it.
func NewMemoryBackend(sweep time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweep > 0 {
		go b.janitor(sweep)
	}
	return b
}

// SetClock replaces the time source used for expiry.
func (b *MemoryBackend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *MemoryBackend) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			now := b.now()
			for key, e := range b.entries {
				if !now.Before(e.expiresAt) {
					delete(b.entries, key)
				}
			}
			b.mu.Unlock()
		}
	}
}

// lookup returns a live entry (must hold lock).
func (b *MemoryBackend) lookup(key string) (memoryEntry, bool) {
	e, ok := b.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !b.now().Before(e.expiresAt) {
		delete(b.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// Get implements Backend.
func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.lookup(key)
	if !ok {
		return nil, ErrMiss
	}

	// Return a copy to prevent external mutation
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = memoryEntry{value: stored, expiresAt: b.now().Add(ttl)}
	return nil
}

// Incr implements Backend.
func (b *MemoryBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	if e, ok := b.lookup(key); ok {
		current, err := parseCounter(e.value)
		if err != nil {
			return 0, err
		}
		n = current
	}
	n++

	b.entries[key] = memoryEntry{
		value:     []byte(strconv.FormatInt(n, 10)),
		expiresAt: b.now().Add(ttl),
	}
	return n, nil
}

// Ping implements Backend.
func (b *MemoryBackend) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored entries, expired ones included.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Close stops the janitor.
func (b *MemoryBackend) Close() error {
	b.once.Do(func() { close(b.stop) })
	return nil
}
