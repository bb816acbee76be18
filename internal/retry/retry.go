// Package retry implements a bounded exponential-backoff retrier with
// jitter, used by the orchestrator around every external stage call.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config bounds a single stage's retry behaviour.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultConfig is a sane budget for network-bound stages.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// Retrier executes operations under a Config, consulting the
// classifier after every failure.
type Retrier struct {
	config      Config
	isRetryable Classifier
	logger      *slog.Logger
}

// New builds a Retrier; a nil classifier means nothing is retried.
func New(config Config, classifier Classifier, logger *slog.Logger) *Retrier {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor <= 1 {
		config.BackoffFactor = 2.0
	}
	return &Retrier{config: config, isRetryable: classifier, logger: logger}
}

// Do runs the operation until it succeeds, the budget is exhausted, a
// permanent error occurs, or the context is cancelled. The last error
// is returned wrapped; attempts reports how many runs were made.
func (r *Retrier) Do(ctx context.Context, operation func() error) (attempts int, err error) {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		attempts = attempt
		lastErr = operation()
		if lastErr == nil {
			return attempts, nil
		}

		retryable := r.isRetryable != nil && r.isRetryable(lastErr)
		if r.logger != nil {
			r.logger.Warn("attempt failed",
				"attempt", attempt,
				"max_attempts", r.config.MaxAttempts,
				"retryable", retryable,
				"error", lastErr)
		}

		if !retryable || attempt == r.config.MaxAttempts {
			break
		}

		delay := r.delay(attempt)
		select {
		case <-ctx.Done():
			return attempts, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return attempts, fmt.Errorf("after %d attempt(s): %w", attempts, lastErr)
}

func (r *Retrier) delay(attempt int) time.Duration {
	backoff := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if max := float64(r.config.MaxDelay); r.config.MaxDelay > 0 && backoff > max {
		backoff = max
	}
	if r.config.JitterFactor > 0 {
		jitter := backoff * r.config.JitterFactor * (rand.Float64()*2 - 1)
		backoff += jitter
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
