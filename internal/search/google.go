package search

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Searcher runs a single blocking web search.
type Searcher interface {
	Query(ctx context.Context, q string, num int) ([]Result, error)
}

// GoogleSearcher queries the Google Custom Search JSON API.
type GoogleSearcher struct {
	svc      *customsearch.Service
	engineID string
}

// NewGoogleSearcher creates a searcher for the given API key and engine id.
// Extra client options (endpoint, HTTP client) are passed through.
func NewGoogleSearcher(ctx context.Context, apiKey, engineID string, opts ...option.ClientOption) (*GoogleSearcher, error) {
	if apiKey == "" {
		return nil, errors.New("google api key is required")
	}
	if engineID == "" {
		return nil, errors.New("search engine id is required")
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}
	return &GoogleSearcher{svc: svc, engineID: engineID}, nil
}

// Query implements Searcher.
func (g *GoogleSearcher) Query(ctx context.Context, q string, num int) ([]Result, error) {
	resp, err := g.svc.Cse.List().
		Q(q).
		Cx(g.engineID).
		Num(int64(num)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, Result{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
		})
	}
	return results, nil
}
