// Package search gathers web search results used as answer context.
//
// The underlying API client blocks, so calls run on a fixed pool of workers
// and the caller waits with its own deadline. A request whose deadline passes
// returns empty even if its worker is still busy.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/campusqa/campusqa/internal/cache"
	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// ErrPoolClosed is returned when a search is submitted after Close.
var ErrPoolClosed = errors.New("search pool closed")

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Fragment renders the result as a context fragment.
func (r Result) Fragment() string {
	return fmt.Sprintf("%s\n%s\nSource: %s", r.Title, r.Snippet, r.Link)
}

// Cache is the subset of the cache store used for search results.
type Cache interface {
	GetJSON(ctx context.Context, query string, ns cache.Namespace, v any) bool
	PutJSON(ctx context.Context, query string, ns cache.Namespace, v any)
}

// Config configures a Provider.
type Config struct {
	// Keyword is prepended to every query.
	Keyword    string
	MaxResults int
	Timeout    time.Duration
	Workers    int

	// QPS caps outbound calls per second. Zero disables the limit.
	QPS float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Keyword:    "ИТМО",
		MaxResults: 5,
		Timeout:    20 * time.Second,
		Workers:    3,
		QPS:        5,
	}
}

type job struct {
	ctx   context.Context
	query string
	done  chan jobResult
}

type jobResult struct {
	results []Result
	err     error
}

// Provider runs searches on a worker pool. Every failure yields an empty result.
type Provider struct {
	searcher Searcher
	cfg      Config
	cache    Cache
	limiter  *rate.Limiter
	log      *logger.Logger

	jobs     chan job
	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewProvider creates a provider and starts its workers. cache may be nil.
func NewProvider(searcher Searcher, cfg Config, c Cache, log *logger.Logger) *Provider {
	def := DefaultConfig()
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if log == nil {
		log = logger.Default()
	}

	limit := rate.Inf
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
	}
	burst := max(1, int(cfg.QPS))

	p := &Provider{
		searcher: searcher,
		cfg:      cfg,
		cache:    c,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log,
		jobs:     make(chan job),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Provider) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		results, err := p.run(j.ctx, j.query)
		j.done <- jobResult{results: results, err: err}
	}
}

func (p *Provider) run(ctx context.Context, query string) (results []Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panicked: %v", r)
		}
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("search quota wait: %w", err)
	}
	return p.searcher.Query(ctx, query, p.cfg.MaxResults)
}

// Search returns up to MaxResults hits for query. It never returns an error.
func (p *Provider) Search(ctx context.Context, query string) []Result {
	log := p.log.WithContext(ctx)
	full := strings.TrimSpace(p.cfg.Keyword + " " + query)

	if p.cache != nil {
		var cached []Result
		if p.cache.GetJSON(ctx, full, cache.Search, &cached) {
			return truncate(cached, p.cfg.MaxResults)
		}
	}

	results, err := p.submit(ctx, full)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Error("Search timed out", "timeout", p.cfg.Timeout)
		} else {
			log.Error("Search failed", "error", err)
		}
		return []Result{}
	}

	results = truncate(results, p.cfg.MaxResults)
	if p.cache != nil && len(results) > 0 {
		p.cache.PutJSON(ctx, full, cache.Search, results)
	}
	return results
}

func (p *Provider) submit(ctx context.Context, query string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	j := job{ctx: ctx, query: query, done: make(chan jobResult, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting searches and waits for running workers to finish.
func (p *Provider) Close() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
	p.wg.Wait()
	return nil
}

func truncate(results []Result, n int) []Result {
	if results == nil {
		return []Result{}
	}
	if len(results) > n {
		return results[:n]
	}
	return results
}
