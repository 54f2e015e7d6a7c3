package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig shapes the backoff schedule. The zero value is usable; every
// field falls back to a default.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	return c
}

// Retry runs fn until it succeeds, up to cfg.MaxAttempts times, sleeping an
// exponentially growing, jittered delay between attempts. Cancellation is
// checked between attempts and while sleeping, never mid-attempt, so fn
// always gets at least one full run; fn should watch ctx itself if it can
// block.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry of %s abandoned: %w", name, ctx.Err())
		}
		delay := cfg.delay(attempt)
		logger.Warn("attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", lastErr,
			"retry_in", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry of %s abandoned mid-backoff: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}

// delay computes the sleep after the given attempt: exponential in the
// attempt number with symmetric jitter, capped at MaxDelay.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	d += d * c.JitterFraction * (2*rand.Float64() - 1)
	switch {
	case d > float64(c.MaxDelay):
		return c.MaxDelay
	case d < 0:
		return c.InitialDelay
	}
	return time.Duration(d)
}
