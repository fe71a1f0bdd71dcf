// Package main provides the campusqa server binary.
// It answers questions about a university over HTTP, grounding a language
// model on the institution's news feed and web search.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/campusqa/campusqa/internal/answer"
	"github.com/campusqa/campusqa/internal/bus"
	"github.com/campusqa/campusqa/internal/cache"
	"github.com/campusqa/campusqa/internal/config"
	"github.com/campusqa/campusqa/internal/llm"
	"github.com/campusqa/campusqa/internal/metrics"
	"github.com/campusqa/campusqa/internal/news"
	"github.com/campusqa/campusqa/internal/observability"
	"github.com/campusqa/campusqa/internal/pkg/logger"
	"github.com/campusqa/campusqa/internal/pkg/middleware"
	"github.com/campusqa/campusqa/internal/pkg/security"
	"github.com/campusqa/campusqa/internal/qa"
	"github.com/campusqa/campusqa/internal/search"
	"github.com/campusqa/campusqa/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campusqa-server",
		Short: "CampusQA - question answering about a university",
		Long: `CampusQA answers free-text and multiple-choice questions about a university.

Answers are generated by a language model grounded on recent news and web
search results, validated against a strict schema and cached per time bucket.

Examples:
  campusqa-server                       # Start with defaults and environment
  campusqa-server --config campusqa.yaml
  campusqa-server --port 9000 --verbose`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().IntP("port", "p", 8080, "HTTP server port")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("campusqa-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	port, _ := cmd.Flags().GetInt("port")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		appCfg.Port = port
	}
	if verbose {
		appCfg.Log.Level = "debug"
	}

	log := logger.New(appCfg.Log.Level, appCfg.Log.Format)
	log.Info("Starting CampusQA server", "version", version, "addr", appCfg.Address())
	log.Debug("Effective configuration", "settings", security.MaskSensitiveMap(configSummary(appCfg)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:     appCfg.Observability.TracingEnabled,
		ServiceName: appCfg.Observability.ServiceName,
		Version:     version,
		SampleRatio: appCfg.Observability.TracingSampleRatio,
	}, sdktrace.WithBatcher(observability.NewLogExporter(log)))
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("Error shutting down tracer", "error", err)
		}
	}()

	var metricsSvc *metrics.Metrics
	if appCfg.Observability.MetricsEnabled {
		metricsSvc = metrics.New()
	}

	// Cache
	store, err := newCacheStore(appCfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if metricsSvc != nil {
		store.SetMetrics(metricsSvc)
	}

	// Language model
	provider, err := llm.New(ctx, appCfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create llm provider: %w", err)
	}
	generator := answer.NewGenerator(provider, answer.Config{
		Institution:        appCfg.Institution,
		Model:              appCfg.LLM.Model,
		Temperature:        appCfg.LLM.Temperature,
		MaxTokens:          appCfg.LLM.MaxTokens,
		Timeout:            config.Seconds(appCfg.LLM.Timeout),
		MaxRetries:         appCfg.LLM.MaxRetries,
		BaseDelay:          time.Duration(appCfg.LLM.RetryBaseMS) * time.Millisecond,
		Jitter:             appCfg.LLM.RetryJitter,
		MaxContextSegments: appCfg.LLM.MaxContextSegments,
		MaxContextChars:    appCfg.LLM.MaxContextChars,
	}, log)
	if metricsSvc != nil {
		generator.SetMetrics(metricsSvc)
	}
	log.Info("Language model configured", "provider", provider.Name(), "model", generator.Model())

	deps := qa.Deps{
		Cache:         store,
		Generator:     generator,
		Logger:        log,
		FlightTimeout: config.Seconds(appCfg.Server.RequestTimeout),
	}
	if metricsSvc != nil {
		deps.Metrics = metricsSvc
	}

	// Context sources
	if appCfg.News.Enabled {
		deps.News = news.NewProvider(news.Config{
			FeedURL:  appCfg.News.FeedURL,
			MaxItems: appCfg.News.MaxItems,
			Timeout:  config.Seconds(appCfg.News.Timeout),
		}, log)
		log.Info("News context enabled", "feed", appCfg.News.FeedURL)
	}

	if appCfg.Search.Enabled {
		if appCfg.Search.APIKey == "" || appCfg.Search.EngineID == "" {
			log.Warn("Web search disabled: GOOGLE_API_KEY and GOOGLE_CSE_ID are required")
		} else {
			searcher, err := search.NewGoogleSearcher(ctx, appCfg.Search.APIKey, appCfg.Search.EngineID)
			if err != nil {
				return fmt.Errorf("failed to create search client: %w", err)
			}
			searchSvc := search.NewProvider(searcher, search.Config{
				Keyword:    appCfg.Search.Keyword,
				MaxResults: appCfg.Search.MaxResults,
				Timeout:    config.Seconds(appCfg.Search.Timeout),
				Workers:    appCfg.Search.Workers,
				QPS:        appCfg.Search.QPS,
			}, store, log)
			defer func() { _ = searchSvc.Close() }()
			deps.Search = searchSvc
			log.Info("Web search context enabled", "workers", appCfg.Search.Workers)
		}
	}

	// Event bus
	innerBus, err := bus.NewBus(appCfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	var eventBus bus.Bus = bus.NewLoggedBus(innerBus, log)
	if metricsSvc != nil {
		eventBus = bus.NewInstrumentedBus(eventBus, metricsSvc)
	}
	defer func() { _ = eventBus.Close() }()
	deps.Bus = eventBus

	var answerStats bus.AnswerStats
	if metricsSvc != nil {
		answerStats = metricsSvc
	}
	if err := eventBus.Subscribe(ctx, bus.TopicAnswerGenerated, bus.NewAnswerAuditHandler(answerStats, log)); err != nil {
		log.Warn("Answer audit subscriber not started", "error", err)
	}
	log.Info("Event bus ready", "type", appCfg.Bus.Type)

	svc := qa.NewService(deps)

	// Admission control
	gate := middleware.NewConcurrencyGate(appCfg.Limits.MaxConcurrentRequests)
	var limiter *middleware.RateLimiter
	if appCfg.Limits.RateLimitRequests > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Requests:          appCfg.Limits.RateLimitRequests,
			Window:            config.Seconds(appCfg.Limits.RateLimitWindow),
			TrustProxyHeaders: appCfg.Limits.TrustProxyHeaders,
		})
		if metricsSvc != nil {
			limiter.SetMetrics(metricsSvc)
		}
		log.Info("Rate limiting enabled",
			"requests", appCfg.Limits.RateLimitRequests,
			"window_seconds", appCfg.Limits.RateLimitWindow,
			"trust_proxy_headers", appCfg.Limits.TrustProxyHeaders,
		)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = appCfg.Host
	srvCfg.Port = appCfg.Port
	srvCfg.Version = version
	srvCfg.RequestTimeout = config.Seconds(appCfg.Server.RequestTimeout)
	srvCfg.ShutdownTimeout = config.Seconds(appCfg.Server.ShutdownTimeout)
	srvCfg.MetricsPath = appCfg.Observability.MetricsPath
	if srvCfg.WriteTimeout < srvCfg.RequestTimeout {
		srvCfg.WriteTimeout = srvCfg.RequestTimeout + 10*time.Second
	}

	srv := server.New(srvCfg, server.Deps{
		QA:      svc,
		Cache:   store,
		Gate:    gate,
		Limiter: limiter,
		Metrics: metricsSvc,
		Logger:  log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newCacheStore builds the cache store over the configured backend.
func newCacheStore(appCfg *config.Config, log *logger.Logger) (*cache.Store, error) {
	var backend cache.Backend
	switch appCfg.Cache.Type {
	case "redis":
		rb, err := cache.NewRedisBackend(appCfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		backend = rb
	default:
		backend = cache.NewMemoryBackend(time.Minute)
	}
	log.Info("Cache backend ready", "type", appCfg.Cache.Type)

	return cache.NewStore(backend, cache.Config{
		KeyPrefix: appCfg.Cache.KeyPrefix,
		TTLs: map[cache.Namespace]time.Duration{
			cache.General: config.Seconds(appCfg.Cache.TTL),
			cache.Search:  config.Seconds(appCfg.Cache.SearchTTL),
			cache.Popular: config.Seconds(appCfg.Cache.PopularTTL),
		},
		PopularThreshold: appCfg.Cache.PopularThreshold,
		Timeout:          config.Seconds(appCfg.Cache.Timeout),
	}, log), nil
}

// configSummary flattens the settings worth logging at startup.
func configSummary(c *config.Config) map[string]string {
	return map[string]string{
		"institution":      c.Institution,
		"cache.type":       c.Cache.Type,
		"llm.provider":     c.LLM.Provider,
		"llm.model":        c.LLM.Model,
		"llm.api_key":      c.LLM.APIKey,
		"llm.gemini_key":   c.LLM.GeminiAPIKey,
		"news.feed_url":    c.News.FeedURL,
		"search.api_key":   c.Search.APIKey,
		"search.engine_id": c.Search.EngineID,
		"bus.type":         c.Bus.Type,
	}
}
