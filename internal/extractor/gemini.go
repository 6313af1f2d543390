package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for extraction.
const DefaultModelName = "gemini-2.5-flash"

const (
	defaultAttempts       = 3
	defaultRetryPause     = 2 * time.Second
	defaultAttemptTimeout = 30 * time.Second
	temperature           = 0.1
	maxOutputTokens       = 2048
)

// Generator is the slice of the genai client the extractor calls.
// *genai.Models satisfies it.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini extracts expenses with a Gemini model. Rate-limited calls are
// retried a bounded number of times; repeated upstream failures open a
// circuit breaker that fails fast with ErrUnavailable.
type Gemini struct {
	gen            Generator
	model          string
	attempts       int
	retryPause     time.Duration
	attemptTimeout time.Duration
	breaker        *gobreaker.CircuitBreaker
	log            zerolog.Logger
}

// Option customizes a Gemini extractor.
type Option func(*Gemini)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithRetry overrides the attempt count and the pause between rate-limited attempts.
func WithRetry(attempts int, pause time.Duration) Option {
	return func(g *Gemini) {
		g.attempts = attempts
		g.retryPause = pause
	}
}

// WithAttemptTimeout bounds each model call.
func WithAttemptTimeout(d time.Duration) Option {
	return func(g *Gemini) { g.attemptTimeout = d }
}

// WithBreakerSettings replaces the circuit breaker configuration.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(g *Gemini) { g.breaker = gobreaker.NewCircuitBreaker(st) }
}

// NewGemini wraps a generator.
func NewGemini(gen Generator, log zerolog.Logger, opts ...Option) *Gemini {
	g := &Gemini{
		gen:            gen,
		model:          DefaultModelName,
		attempts:       defaultAttempts,
		retryPause:     defaultRetryPause,
		attemptTimeout: defaultAttemptTimeout,
		log:            log,
	}
	g.breaker = gobreaker.NewCircuitBreaker(defaultBreakerSettings(log))
	for _, opt := range opts {
		opt(g)
	}
	if g.attempts < 1 {
		g.attempts = 1
	}
	return g
}

// NewGeminiFromAPIKey creates a genai client for the Gemini API and wraps it.
func NewGeminiFromAPIKey(ctx context.Context, apiKey string, log zerolog.Logger, opts ...Option) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiFromAPIKey: create genai client: %w", err)
	}
	return NewGemini(client.Models, log, opts...), nil
}

func defaultBreakerSettings(log zerolog.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}
}

// Extract implements Extractor.
func (g *Gemini) Extract(ctx context.Context, text string, fragments []string) (*ParsedExpense, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(BuildSystemPrompt(fragments))}},
		Temperature:       genai.Ptr[float32](temperature),
		MaxOutputTokens:   maxOutputTokens,
		ResponseMIMEType:  "application/json",
	}
	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf("Input to parse: %q", text), genai.RoleUser),
	}

	for attempt := 1; ; attempt++ {
		raw, err := g.generate(ctx, contents, config)
		if err == nil {
			expense, err := decodeExpense(raw)
			if err != nil {
				g.log.Warn().Err(err).Str("response", truncate(raw, 200)).Msg("Model response rejected")
				return nil, err
			}
			return expense, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		if attempt >= g.attempts {
			return nil, err
		}

		g.log.Warn().Int("attempt", attempt).Int("max_attempts", g.attempts).Msg("Gemini rate limit exceeded, retrying")
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("Gemini.Extract: %w", ctx.Err())
		case <-time.After(g.retryPause):
		}
	}
}

// generate performs one bounded model call through the breaker and maps
// failures onto the package sentinels.
func (g *Gemini) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
	defer cancel()

	out, err := g.breaker.Execute(func() (interface{}, error) {
		resp, err := g.gen.GenerateContent(attemptCtx, g.model, contents, config)
		if err != nil {
			return nil, err
		}
		return resp.Text(), nil
	})
	switch {
	case err == nil:
		return out.(string), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return "", fmt.Errorf("%w after %s", ErrTimeout, g.attemptTimeout)
	case statusCode(err) == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return "", fmt.Errorf("%w: generate content: %v", domain.ErrExtraction, err)
}

func statusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
