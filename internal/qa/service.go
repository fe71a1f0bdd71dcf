// Package qa orchestrates answering a single query: cache lookup, context
// gathering, generation and cache write.
package qa

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/campusqa/campusqa/internal/answer"
	"github.com/campusqa/campusqa/internal/bus"
	"github.com/campusqa/campusqa/internal/cache"
	"github.com/campusqa/campusqa/internal/news"
	"github.com/campusqa/campusqa/internal/observability"
	apperrors "github.com/campusqa/campusqa/internal/pkg/errors"
	"github.com/campusqa/campusqa/internal/pkg/hash"
	"github.com/campusqa/campusqa/internal/pkg/logger"
	"github.com/campusqa/campusqa/internal/pkg/security"
	"github.com/campusqa/campusqa/internal/search"
)

// Query is an incoming question.
type Query struct {
	ID   int    `json:"id"`
	Text string `json:"query"`
}

// Response is the answer returned to the client.
type Response struct {
	ID        int      `json:"id"`
	Answer    *int     `json:"answer"`
	Reasoning string   `json:"reasoning"`
	Sources   []string `json:"sources"`
	Model     string   `json:"model"`
}

// Cache stores answers by namespace and counts query popularity.
type Cache interface {
	Get(ctx context.Context, query string, ns cache.Namespace) (*answer.Record, bool)
	Put(ctx context.Context, query string, rec *answer.Record, ns cache.Namespace)
	IncrementPopularity(ctx context.Context, query string) int64
	NamespaceFor(count int64) cache.Namespace
}

// NewsSource returns recent news items. It never fails.
type NewsSource interface {
	FetchRecent(ctx context.Context) []news.Item
}

// SearchSource returns web results for a query. It never fails.
type SearchSource interface {
	Search(ctx context.Context, query string) []search.Result
}

// Generator produces a validated answer record.
type Generator interface {
	Generate(ctx context.Context, query, contextText string) (*answer.Record, error)
	Model() string
}

// Publisher publishes service events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event bus.Event) error
}

// Metrics is the interface for recording orchestration metrics.
type Metrics interface {
	RecordRequest(outcome string, d time.Duration)
	RecordContextFetch(source string, fragments int, d time.Duration)
}

// Deps holds the collaborators of a Service. News, Search, Bus and Metrics
// are optional.
type Deps struct {
	Cache     Cache
	Generator Generator
	News      NewsSource
	Search    SearchSource
	Bus       Publisher
	Metrics   Metrics
	Logger    *logger.Logger

	// FlightTimeout bounds a shared generation. Zero means DefaultFlightTimeout.
	FlightTimeout time.Duration
}

// DefaultFlightTimeout bounds a shared generation when Deps leaves it unset.
const DefaultFlightTimeout = 90 * time.Second

// Service handles queries. It keeps no per-request state.
type Service struct {
	cache   Cache
	gen     Generator
	news    NewsSource
	search  SearchSource
	bus     Publisher
	metrics Metrics
	log     *logger.Logger

	flightTimeout time.Duration

	// inflight coalesces concurrent misses for the same query text.
	inflight singleflight.Group
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	flightTimeout := deps.FlightTimeout
	if flightTimeout <= 0 {
		flightTimeout = DefaultFlightTimeout
	}
	return &Service{
		flightTimeout: flightTimeout,
		cache:   deps.Cache,
		gen:     deps.Generator,
		news:    deps.News,
		search:  deps.Search,
		bus:     deps.Bus,
		metrics: deps.Metrics,
		log:     log,
	}
}

// Handle answers q. Errors are AppErrors: INVALID_REQUEST for an empty
// query, MODEL_UNAVAILABLE when the model could not be reached, and
// PROCESSING_ERROR for any other fault.
func (s *Service) Handle(ctx context.Context, q Query) (resp *Response, err error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "qa.handle",
		trace.WithAttributes(attribute.Int("qa.query_id", q.ID)))
	defer span.End()

	log := s.log.WithContext(ctx).WithQuery(q.ID)
	if traceID := observability.TraceID(ctx); traceID != "" {
		log = &logger.Logger{Logger: log.With("trace_id", traceID)}
	}
	log.Info("Handling query", "query_hash", hash.QueryID(q.Text), "query_length", len(q.Text))
	log.Debug("Query text", "query", security.SanitizeForLog(q.Text))

	outcome := "miss"
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = apperrors.ProcessingError(fmt.Errorf("panic: %v", r))
			log.Error("Recovered panic while handling query", "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil {
			outcome = errorCode(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			if outcome != apperrors.CodeInvalidRequest {
				log.Error("Query failed", "code", outcome, "error", err)
			}
		}
		elapsed := time.Since(start)
		span.SetAttributes(attribute.String("qa.outcome", outcome))
		if s.metrics != nil {
			s.metrics.RecordRequest(outcome, elapsed)
		}
		log.Info("Query finished", "outcome", outcome, "duration_ms", elapsed.Milliseconds())
	}()

	if strings.TrimSpace(q.Text) == "" {
		return nil, apperrors.InvalidRequestError("query must not be empty")
	}

	if rec, ok := s.lookup(ctx, q.Text); ok {
		outcome = "hit"
		return newResponse(q.ID, rec), nil
	}

	// The flight is detached from every caller; a waiter whose context ends
	// abandons only its own wait.
	flight := s.inflight.DoChan(q.Text, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.runFlight(flightCtx, q, start)
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("Shared in-flight generation")
		}
		return newResponse(q.ID, res.Val.(*answer.Record)), nil
	case <-ctx.Done():
		return nil, apperrors.ProcessingError(fmt.Errorf("waiting for answer: %w", ctx.Err()))
	}
}

// runFlight is the body of a coalesced miss. It must not panic: singleflight
// re-raises DoChan panics on a fresh goroutine.
func (s *Service) runFlight(ctx context.Context, q Query, start time.Time) (rec *answer.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = apperrors.ProcessingError(fmt.Errorf("panic: %v", r))
			s.log.WithContext(ctx).WithQuery(q.ID).Error("Recovered panic while generating",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	// A flight that finished between our lookup and now has filled the cache.
	if rec, ok := s.lookup(ctx, q.Text); ok {
		return rec, nil
	}
	return s.generate(ctx, q, start)
}

// lookup checks the popular namespace first, then general.
func (s *Service) lookup(ctx context.Context, query string) (*answer.Record, bool) {
	for _, ns := range []cache.Namespace{cache.Popular, cache.General} {
		if rec, ok := s.cache.Get(ctx, query, ns); ok {
			return rec, true
		}
	}
	return nil, false
}

// generate runs the miss path and commits the result to the cache before
// returning it.
func (s *Service) generate(ctx context.Context, q Query, start time.Time) (*answer.Record, error) {
	log := s.log.WithContext(ctx).WithQuery(q.ID)

	contextText, err := s.gatherContext(ctx, q.Text)
	if err != nil {
		return nil, apperrors.ProcessingError(err)
	}

	genCtx, span := observability.Tracer().Start(ctx, "qa.generate")
	rec, err := s.gen.Generate(genCtx, q.Text, contextText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
	}
	span.End()
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.ProcessingError(err)
	}

	count := s.cache.IncrementPopularity(ctx, q.Text)
	ns := s.cache.NamespaceFor(count)
	degraded := rec.Degraded()
	if degraded {
		log.Warn("Degraded answer not cached", "model", rec.Model)
	} else {
		s.cache.Put(ctx, q.Text, rec, ns)
	}

	s.publish(ctx, q, rec, ns, time.Since(start))
	return rec, nil
}

// gatherContext fetches news and search results concurrently and renders
// them as fragments, news first.
func (s *Service) gatherContext(ctx context.Context, query string) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "qa.gather_context")
	defer span.End()

	var (
		items   []news.Item
		results []search.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	if s.news != nil {
		g.Go(func() (err error) {
			defer recoverAs(&err, "news")
			start := time.Now()
			items = s.news.FetchRecent(gctx)
			s.recordFetch("news", len(items), time.Since(start))
			return nil
		})
	}
	if s.search != nil {
		g.Go(func() (err error) {
			defer recoverAs(&err, "search")
			start := time.Now()
			results = s.search.Search(gctx, query)
			s.recordFetch("search", len(results), time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return "", err
	}

	span.SetAttributes(
		attribute.Int("qa.news_items", len(items)),
		attribute.Int("qa.search_results", len(results)),
	)
	return BuildContext(items, results), nil
}

// BuildContext renders news items followed by search results as
// blank-line separated fragments.
func BuildContext(items []news.Item, results []search.Result) string {
	fragments := make([]string, 0, len(items)+len(results))
	for _, it := range items {
		fragments = append(fragments, it.Fragment())
	}
	for _, r := range results {
		fragments = append(fragments, r.Fragment())
	}
	return strings.Join(fragments, "\n\n")
}

func (s *Service) publish(ctx context.Context, q Query, rec *answer.Record, ns cache.Namespace, latency time.Duration) {
	if s.bus == nil {
		return
	}

	payload := bus.AnswerGenerated{
		RequestID: q.ID,
		QueryHash: hash.QueryID(q.Text),
		Namespace: string(ns),
		Model:     rec.Model,
		Degraded:  rec.Degraded(),
		HasAnswer: rec.Answer != nil,
		Sources:   len(rec.Sources),
		LatencyMS: latency.Milliseconds(),
	}
	event := bus.NewEvent(bus.TopicAnswerGenerated, "campusqa", logger.RequestIDFromContext(ctx), payload)

	if err := s.bus.Publish(ctx, bus.TopicAnswerGenerated, event); err != nil {
		s.log.WithContext(ctx).Warn("Failed to publish answer event", "error", err)
	}
}

func (s *Service) recordFetch(source string, n int, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordContextFetch(source, n, d)
	}
}

// newResponse copies rec so callers cannot alias cached data.
func newResponse(id int, rec *answer.Record) *Response {
	sources := make([]string, len(rec.Sources))
	copy(sources, rec.Sources)

	var ans *int
	if rec.Answer != nil {
		ans = answer.IntPtr(*rec.Answer)
	}

	return &Response{
		ID:        id,
		Answer:    ans,
		Reasoning: rec.Reasoning,
		Sources:   sources,
		Model:     rec.Model,
	}
}

func recoverAs(err *error, source string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s provider panicked: %v", source, r)
	}
}

func errorCode(err error) string {
	if appErr, ok := apperrors.As(err); ok {
		return appErr.Code
	}
	return apperrors.CodeInternal
}
