// Package cache provides the time-bucketed answer cache.
//
// Entries are keyed by (namespace, query text, bucket) where the bucket is
// floor(unix_now / namespace_ttl). Identical queries inside one bucket
// collide; the same text in a later bucket never does. Every failure of the
// backing store is logged and absorbed: reads become misses, writes become
// no-ops and popularity increments report zero.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/campusqa/campusqa/internal/answer"
	"github.com/campusqa/campusqa/internal/pkg/hash"
	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// Namespace partitions the cache; each namespace has its own TTL.
type Namespace string

// Namespaces.
const (
	General Namespace = "general"
	Search  Namespace = "search"
	Popular Namespace = "popular"
)

// ErrMiss is returned by a Backend when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend is an expiring key/value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr atomically increments key and resets its TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Metrics is the interface for recording cache metrics.
// This allows the cache to be decoupled from the metrics package.
type Metrics interface {
	RecordCacheHit(namespace string)
	RecordCacheMiss(namespace string)
	RecordCacheError(op string)
}

// Config configures a Store.
type Config struct {
	// KeyPrefix is prepended to every backend key.
	KeyPrefix string

	// TTLs maps each namespace to its entry lifetime (and bucket width).
	TTLs map[Namespace]time.Duration

	// PopularThreshold is the generation count above which a query is
	// cached in the Popular namespace.
	PopularThreshold int64

	// Timeout bounds every backend call.
	Timeout time.Duration
}

// DefaultConfig returns the default cache policy.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "campusqa:",
		TTLs: map[Namespace]time.Duration{
			General: time.Minute,
			Search:  6 * time.Hour,
			Popular: 12 * time.Hour,
		},
		PopularThreshold: 5,
		Timeout:          2 * time.Second,
	}
}

// Store is the cache facade used by the request pipeline.
type Store struct {
	backend Backend
	cfg     Config
	log     *logger.Logger
	metrics Metrics
	now     func() time.Time
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, cfg Config, log *logger.Logger) *Store {
	def := DefaultConfig()
	if cfg.TTLs == nil {
		cfg.TTLs = def.TTLs
	}
	for ns, ttl := range def.TTLs {
		if cfg.TTLs[ns] <= 0 {
			cfg.TTLs[ns] = ttl
		}
	}
	if cfg.PopularThreshold <= 0 {
		cfg.PopularThreshold = def.PopularThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if log == nil {
		log = logger.Default()
	}

	return &Store{
		backend: backend,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// SetMetrics sets the metrics recorder for this store.
func (s *Store) SetMetrics(m Metrics) {
	s.metrics = m
}

// SetClock replaces the time source used for bucketing.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// TTL returns the lifetime configured for ns.
func (s *Store) TTL(ns Namespace) time.Duration {
	return s.cfg.TTLs[ns]
}

// Bucket returns floor(unix(now) / ttl) with ttl rounded down to whole
// seconds (minimum one second).
func Bucket(now time.Time, ttl time.Duration) int64 {
	width := int64(ttl / time.Second)
	if width < 1 {
		width = 1
	}
	return now.Unix() / width
}

// Key renders the backend key for query in ns at time now.
func (s *Store) Key(ns Namespace, query string, now time.Time) string {
	bucket := Bucket(now, s.TTL(ns))
	return fmt.Sprintf("%s%s:%s:%d", s.cfg.KeyPrefix, ns, hash.SHA256String(query), bucket)
}

func (s *Store) popularityKey(query string) string {
	return s.cfg.KeyPrefix + "popularity:" + hash.SHA256String(query)
}

// Get returns the cached record for query in ns, if any.
func (s *Store) Get(ctx context.Context, query string, ns Namespace) (*answer.Record, bool) {
	var rec answer.Record
	if !s.GetJSON(ctx, query, ns, &rec) {
		return nil, false
	}
	if rec.Sources == nil {
		rec.Sources = []string{}
	}
	return &rec, true
}

// Put stores rec for query in ns.
func (s *Store) Put(ctx context.Context, query string, rec *answer.Record, ns Namespace) {
	if rec == nil {
		return
	}
	s.PutJSON(ctx, query, ns, rec)
}

// GetJSON decodes the value cached for query in ns into v.
// It reports false on a miss and on any backend or decode failure.
func (s *Store) GetJSON(ctx context.Context, query string, ns Namespace, v any) bool {
	key := s.Key(ns, query, s.now())

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.log.Warn("Cache read failed", "namespace", ns, "error", err)
			s.recordError("get")
		}
		s.recordMiss(ns)
		return false
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn("Cache entry undecodable", "namespace", ns, "error", err)
		s.recordError("decode")
		s.recordMiss(ns)
		return false
	}

	s.recordHit(ns)
	return true
}

// PutJSON stores v for query in ns with the namespace TTL.
func (s *Store) PutJSON(ctx context.Context, query string, ns Namespace, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("Cache entry unencodable", "namespace", ns, "error", err)
		s.recordError("encode")
		return
	}

	key := s.Key(ns, query, s.now())

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.backend.Set(ctx, key, data, s.TTL(ns)); err != nil {
		s.log.Warn("Cache write failed", "namespace", ns, "error", err)
		s.recordError("set")
	}
}

// IncrementPopularity bumps the generation counter of query and returns the
// new count. The counter expires with the General TTL. On failure it returns 0.
func (s *Store) IncrementPopularity(ctx context.Context, query string) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	n, err := s.backend.Incr(ctx, s.popularityKey(query), s.TTL(General))
	if err != nil {
		s.log.Warn("Popularity increment failed", "error", err)
		s.recordError("incr")
		return 0
	}
	return n
}

// NamespaceFor returns the namespace a freshly generated answer is written to
// given its popularity count.
func (s *Store) NamespaceFor(count int64) Namespace {
	if count > s.cfg.PopularThreshold {
		return Popular
	}
	return General
}

// Ping checks backend reachability.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.backend.Ping(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) recordHit(ns Namespace) {
	if s.metrics != nil {
		s.metrics.RecordCacheHit(string(ns))
	}
}

func (s *Store) recordMiss(ns Namespace) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(string(ns))
	}
}

func (s *Store) recordError(op string) {
	if s.metrics != nil {
		s.metrics.RecordCacheError(op)
	}
}

// parseCounter decodes a counter value written by Incr.
func parseCounter(data []byte) (int64, error) {
	return strconv.ParseInt(string(data), 10, 64)
}
