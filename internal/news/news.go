// Package news fetches recent institutional news used as answer context.
package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// Item is a single news entry.
type Item struct {
	Title     string
	Link      string
	Summary   string
	Published string
}

// Fragment renders the item as a context fragment.
func (i Item) Fragment() string {
	return fmt.Sprintf("%s\n%s\nSource: %s", i.Title, i.Summary, i.Link)
}

// Config configures a Provider.
type Config struct {
	FeedURL  string
	MaxItems int
	Timeout  time.Duration
}

// Provider reads an RSS or Atom feed. Every failure yields an empty result.
type Provider struct {
	cfg    Config
	parser *gofeed.Parser
	log    *logger.Logger
}

// NewProvider creates a news provider.
func NewProvider(cfg Config, log *logger.Logger) *Provider {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if log == nil {
		log = logger.Default()
	}

	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.Timeout}
	parser.UserAgent = "campusqa/1.0"

	return &Provider{cfg: cfg, parser: parser, log: log}
}

// FetchRecent returns up to MaxItems of the most recent feed entries in feed
// order. It never returns an error.
func (p *Provider) FetchRecent(ctx context.Context) []Item {
	log := p.log.WithContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	feed, err := p.parser.ParseURLWithContext(p.cfg.FeedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		switch {
		case errors.As(err, &httpErr):
			log.Warn("News feed returned non-success status", "status", httpErr.StatusCode)
		case errors.Is(err, context.DeadlineExceeded):
			log.Error("Timed out fetching news", "timeout", p.cfg.Timeout)
		default:
			log.Error("Failed to fetch news", "error", err)
		}
		return []Item{}
	}

	if len(feed.Items) == 0 {
		log.Warn("News feed has no entries")
		return []Item{}
	}

	n := min(len(feed.Items), p.cfg.MaxItems)
	items := make([]Item, 0, n)
	for _, entry := range feed.Items[:n] {
		items = append(items, Item{
			Title:     strings.TrimSpace(entry.Title),
			Link:      strings.TrimSpace(entry.Link),
			Summary:   strings.TrimSpace(entry.Description),
			Published: entry.Published,
		})
	}
	return items
}
