// Package answer turns a query and retrieved context into a validated Record.
package answer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/campusqa/campusqa/internal/llm"
	apperrors "github.com/campusqa/campusqa/internal/pkg/errors"
	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// Metrics is the interface for recording model call metrics.
type Metrics interface {
	RecordModelAttempt(provider, result string)
}

// Config configures a Generator.
type Config struct {
	// Institution is named in the system instruction.
	Institution string

	// Model, Temperature and MaxTokens are passed to the provider.
	Model       string
	Temperature float64
	MaxTokens   int

	// Timeout bounds a single provider attempt.
	Timeout time.Duration

	// MaxRetries is the total number of attempts for transport failures.
	MaxRetries int

	// BaseDelay is the backoff unit: the wait after failed attempt k is
	// BaseDelay * 2^k.
	BaseDelay time.Duration

	// Jitter adds up to half of each backoff delay at random.
	Jitter bool

	// MaxContextSegments and MaxContextChars bound the context turn.
	MaxContextSegments int
	MaxContextChars    int
}

// DefaultConfig returns sensible generator defaults.
func DefaultConfig() Config {
	return Config{
		Institution:        "ИТМО",
		Model:              "gpt-4o-mini",
		Temperature:        0.7,
		MaxTokens:          1000,
		Timeout:            60 * time.Second,
		MaxRetries:         3,
		BaseDelay:          time.Second,
		MaxContextSegments: 10,
		MaxContextChars:    8000,
	}
}

// Generator builds prompts, calls the model with retries and validates output.
// It holds no per-request state and is safe for concurrent use.
type Generator struct {
	provider llm.Provider
	cfg      Config
	log      *logger.Logger
	metrics  Metrics

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// NewGenerator creates a Generator.
func NewGenerator(provider llm.Provider, cfg Config, log *logger.Logger) *Generator {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Institution == "" {
		cfg.Institution = def.Institution
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if log == nil {
		log = logger.Default()
	}

	return &Generator{
		provider: provider,
		cfg:      cfg,
		log:      log,
		sleep:    sleepContext,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return rand.N(max)
		},
	}
}

// SetMetrics sets the metrics recorder.
func (g *Generator) SetMetrics(m Metrics) {
	g.metrics = m
}

// Model returns the configured model identifier.
func (g *Generator) Model() string {
	return g.cfg.Model
}

// Generate produces a Record for query using contextText as supporting
// material. Malformed model output never fails: it yields Degraded. Only
// exhausting every attempt on transport failures returns an error, an
// AppError with code MODEL_UNAVAILABLE.
func (g *Generator) Generate(ctx context.Context, query, contextText string) (*Record, error) {
	contextText = BudgetContext(contextText, g.cfg.MaxContextSegments, g.cfg.MaxContextChars)
	messages := BuildMessages(g.cfg.Institution, g.cfg.Model, query, contextText)
	log := g.log.WithContext(ctx)

	raw, err := g.completeWithRetry(ctx, messages)
	if err != nil {
		return nil, err
	}

	rec, err := Parse(raw, HasNumberedOptions(query), g.cfg.Model)
	if err != nil {
		log.Warn("Model output rejected, returning degraded answer",
			"error", err,
			"raw_length", len(raw),
		)
		log.Debug("Rejected model output", "raw", raw)
		g.recordAttempt("invalid_output")
		return Degraded(g.cfg.Model), nil
	}

	return rec, nil
}

func (g *Generator) completeWithRetry(ctx context.Context, messages []llm.Message) (string, error) {
	log := g.log.WithContext(ctx)
	params := llm.Params{
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.Backoff(attempt - 1)
			if err := g.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		raw, err := g.completeOnce(ctx, messages, params)
		if err == nil {
			g.recordAttempt("success")
			return raw, nil
		}

		lastErr = err
		g.recordAttempt("error")
		log.Warn("Model call failed",
			"provider", g.provider.Name(),
			"attempt", attempts,
			"max_attempts", g.cfg.MaxRetries,
			"error", err,
		)

		if ctx.Err() != nil {
			break
		}
	}

	return "", apperrors.ModelUnavailableError(attempts, lastErr)
}

func (g *Generator) completeOnce(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	raw, err := g.provider.Complete(attemptCtx, messages, params)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return "", fmt.Errorf("model call exceeded %s: %w", g.cfg.Timeout, err)
		}
		return "", err
	}
	return raw, nil
}

// Backoff returns the wait after failed attempt k (0-indexed):
// BaseDelay * 2^k, plus jitter when enabled.
func (g *Generator) Backoff(k int) time.Duration {
	delay := g.cfg.BaseDelay << uint(k)
	if g.cfg.Jitter {
		delay += g.jitter(delay / 2)
	}
	return delay
}

func (g *Generator) recordAttempt(result string) {
	if g.metrics != nil {
		g.metrics.RecordModelAttempt(g.provider.Name(), result)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
