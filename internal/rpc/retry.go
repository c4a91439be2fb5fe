package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
)

// transientMarkers are lower-cased fragments of provider errors worth retrying.
var transientMarkers = []string{
	// timeouts
	"timeout",
	"deadline exceeded",
	// rate limiting
	"429",
	"too many requests",
	"rate limit",
	// upstream failures
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
	// pool exhaustion
	"connection pool",
	"no available connection",
}

// retryableError reports whether err is a transient provider failure.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

// calculateBackoff returns the wait before attempt (1-based). The first attempt never
// waits; later ones grow exponentially from InitialBackoff, capped at MaxBackoff, with
// +/-25% jitter.
func calculateBackoff(attempt int, cfg *config.RetryConfig) time.Duration {
	if attempt <= 1 {
		return 0
	}

	backoff := float64(cfg.InitialBackoff.Duration) * math.Pow(cfg.BackoffMultiplier, float64(attempt-2))
	backoff = math.Min(backoff, float64(cfg.MaxBackoff.Duration))

	spread := backoff * 0.25
	backoff += rand.Float64()*2*spread - spread

	return time.Duration(math.Max(backoff, 0))
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error, or
// cfg.MaxAttempts is reached. A nil cfg runs fn exactly once.
func retryWithBackoff(
	ctx context.Context,
	cfg *config.RetryConfig,
	log *logger.Logger,
	operation string,
	fn func() error,
) error {
	if cfg == nil {
		return fn()
	}

	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if wait := calculateBackoff(attempt, cfg); wait > 0 {
			RPCRetryInc(operation)
			log.Debugw("retrying rpc call", "operation", operation, "attempt", attempt, "wait", wait, "error", lastErr)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context cancelled during backoff (attempt %d/%d): %w",
					attempt-1, cfg.MaxAttempts, ctx.Err())
			}
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled before attempt %d: %w", attempt, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempt, cfg.MaxAttempts, err)
		}
	}

	log.Warnw("rpc call failed after all attempts", "operation", operation, "attempts", cfg.MaxAttempts, "error", lastErr)

	return fmt.Errorf("all %d attempts failed after %v (last error: %w)",
		cfg.MaxAttempts, time.Since(start), lastErr)
}
