// Package judge wraps the LLM judgment capability behind a small interface.
//
// Judgment calls are blocking, retryable and possibly slow. The genkit-backed
// client applies a rate limiter, a bounded retry count with capped
// exponential backoff, and a hard per-call timeout. Callers keep their own
// fail-safe policy when the capability stays unreachable: the comparator
// reports no_match, the gap detector no_action.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// MaxResponseBytes caps a judgment response before JSON parsing.
const MaxResponseBytes = 10 * 1024

// Client is the judgment capability: one structured prompt in, raw model
// text out. Implementations must be safe for concurrent use.
type Client interface {
	Judge(ctx context.Context, prompt string) (string, error)
}

// RetryConfig configures retry behavior for judgment calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Timeout         time.Duration // hard cap per Judge call, retries included
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Timeout:         60 * time.Second,
	}
}

// GenkitClient implements Client on top of genkit.Generate.
type GenkitClient struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	retry       RetryConfig
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewGenkitClient creates a GenkitClient. limiter may be nil to disable
// proactive rate limiting; zero-value retry uses defaults.
func NewGenkitClient(g *genkit.Genkit, modelName string, temperature float32,
	retry RetryConfig, limiter *rate.Limiter, logger *slog.Logger) (*GenkitClient, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if retry.MaxRetries == 0 && retry.InitialInterval == 0 {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GenkitClient{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
		retry:       retry,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Judge sends the prompt and returns the raw model text, retrying transient
// failures with exponential backoff up to the configured bound.
func (c *GenkitClient) Judge(ctx context.Context, prompt string) (string, error) {
	if c.retry.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.retry.Timeout)
		defer cancel()
	}

	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, c.g,
			ai.WithModelName(c.modelName),
			ai.WithPrompt(prompt),
			ai.WithConfig(map[string]any{"temperature": c.temperature}),
		)
		if err == nil {
			text := strings.TrimSpace(resp.Text())
			if len(text) > MaxResponseBytes {
				return "", fmt.Errorf("judgment response too large: %d bytes", len(text))
			}
			c.logger.Debug("judgment call succeeded", "attempts", attempt+1, "elapsed", time.Since(start))
			return text, nil
		}

		lastErr = err
		if !retryableError(err) {
			return "", fmt.Errorf("judgment call: %w", err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying judgment call", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("judgment call after %d retries (elapsed %v): %w",
		c.retry.MaxRetries, time.Since(start), lastErr)
}

// retryableError reports whether an error should trigger a retry.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	// Rate limiting and quota.
	if containsAny(errStr, "rate limit", "quota exceeded", "429") {
		return true
	}
	// Transient server errors.
	if containsAny(errStr, "500", "502", "503", "504", "unavailable") {
		return true
	}
	// Network flakes.
	if containsAny(errStr, "connection reset", "timeout", "temporary") {
		return true
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// StripCodeFences removes ```json ... ``` wrapping from model output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// Truncate shortens s to at most n bytes, appending an ellipsis marker when
// anything was cut. The cut lands on a rune boundary so the result stays
// valid UTF-8. Used for bounded prompt payloads and error logging.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
