package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/campusqa/campusqa/internal/cache"
	"github.com/campusqa/campusqa/internal/pkg/logger"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	results []Result
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (f *fakeSearcher) Query(ctx context.Context, q string, num int) ([]Result, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > num {
		return f.results[:num], nil
	}
	return f.results, nil
}

func hits(n int) []Result {
	out := make([]Result, n)
	for i := range out {
		out[i] = Result{
			Title:   fmt.Sprintf("Result %d", i+1),
			Link:    fmt.Sprintf("https://itmo.ru/%d", i+1),
			Snippet: fmt.Sprintf("Snippet %d", i+1),
		}
	}
	return out
}

func newTestProvider(t *testing.T, s Searcher, cfg Config, c Cache) *Provider {
	t.Helper()
	p := NewProvider(s, cfg, c, logger.Discard())
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSearch_PrefixesKeyword(t *testing.T) {
	f := &fakeSearcher{results: hits(2)}
	p := newTestProvider(t, f, DefaultConfig(), nil)

	got := p.Search(context.Background(), "магистратура")

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if len(f.queries) != 1 || f.queries[0] != "ИТМО магистратура" {
		t.Errorf("queries = %v", f.queries)
	}
}

func TestSearch_MaxResults(t *testing.T) {
	f := &fakeSearcher{results: hits(10)}
	cfg := DefaultConfig()
	cfg.MaxResults = 3
	p := newTestProvider(t, f, cfg, nil)

	if got := p.Search(context.Background(), "q"); len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestSearch_FailOpen(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
	}{
		{"api error", &fakeSearcher{err: errors.New("quota exceeded")}},
		{"timeout", &fakeSearcher{results: hits(1), delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Timeout = 50 * time.Millisecond
			p := newTestProvider(t, tt.searcher, cfg, nil)

			got := p.Search(context.Background(), "q")
			if got == nil || len(got) != 0 {
				t.Errorf("Search() = %v, want empty slice", got)
			}
		})
	}
}

func TestSearch_StalledWorkersDoNotBlockCaller(t *testing.T) {
	f := &fakeSearcher{results: hits(1), delay: time.Second}
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.Timeout = 50 * time.Millisecond
	p := newTestProvider(t, f, cfg, nil)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Search(context.Background(), "q")
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("callers waited %v, want bounded by the timeout", elapsed)
	}
}

func TestSearch_Closed(t *testing.T) {
	f := &fakeSearcher{results: hits(1)}
	p := NewProvider(f, DefaultConfig(), nil, logger.Discard())
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := p.Search(context.Background(), "q"); len(got) != 0 {
		t.Errorf("Search() after Close = %v, want empty", got)
	}
	if f.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", f.calls.Load())
	}
	// Close is idempotent.
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSearch_UsesCache(t *testing.T) {
	store := cache.NewStore(cache.NewMemoryBackend(time.Minute), cache.DefaultConfig(), logger.Discard())
	t.Cleanup(func() { _ = store.Close() })

	f := &fakeSearcher{results: hits(2)}
	p := newTestProvider(t, f, DefaultConfig(), store)

	first := p.Search(context.Background(), "q")
	second := p.Search(context.Background(), "q")

	if f.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", f.calls.Load())
	}
	if len(first) != 2 || len(second) != 2 || second[1] != first[1] {
		t.Errorf("cached results differ: %v vs %v", first, second)
	}
}

func TestSearch_EmptyResultsNotCached(t *testing.T) {
	store := cache.NewStore(cache.NewMemoryBackend(time.Minute), cache.DefaultConfig(), logger.Discard())
	t.Cleanup(func() { _ = store.Close() })

	f := &fakeSearcher{}
	p := newTestProvider(t, f, DefaultConfig(), store)

	p.Search(context.Background(), "q")
	p.Search(context.Background(), "q")

	if f.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", f.calls.Load())
	}
}

func TestResultFragment(t *testing.T) {
	r := Result{Title: "T", Snippet: "S", Link: "https://x"}
	if got, want := r.Fragment(), "T\nS\nSource: https://x"; got != want {
		t.Errorf("Fragment() = %q, want %q", got, want)
	}
}

func TestGoogleSearcher(t *testing.T) {
	var gotQuery, gotCx, gotNum string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery, gotCx, gotNum = q.Get("q"), q.Get("cx"), q.Get("num")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{
				{"title": "ITMO", "link": "https://itmo.ru", "snippet": "University"},
			},
		})
	}))
	defer srv.Close()

	g, err := NewGoogleSearcher(context.Background(), "key-1", "cx-1",
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewGoogleSearcher() error = %v", err)
	}

	results, err := g.Query(context.Background(), "ИТМО приём", 5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(results) != 1 || results[0].Link != "https://itmo.ru" || results[0].Snippet != "University" {
		t.Errorf("results = %+v", results)
	}
	if gotQuery != "ИТМО приём" || gotCx != "cx-1" || gotNum != "5" {
		t.Errorf("request q=%q cx=%q num=%q", gotQuery, gotCx, gotNum)
	}
}

func TestNewGoogleSearcher_Validation(t *testing.T) {
	if _, err := NewGoogleSearcher(context.Background(), "", "cx"); err == nil {
		t.Error("expected error for missing api key")
	}
	if _, err := NewGoogleSearcher(context.Background(), "key", ""); err == nil {
		t.Error("expected error for missing engine id")
	}
}
