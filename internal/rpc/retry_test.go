package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainDispatch/internal/common"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutError struct{ msg string }

func (e *timeoutError) Error() string   { return e.msg }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func quickRetry(attempts int) *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    common.NewDuration(10 * time.Millisecond),
		MaxBackoff:        common.NewDuration(100 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "net.Error", err: &timeoutError{msg: "i/o"}, retryable: true},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "connection reset", err: syscall.ECONNRESET, retryable: true},
		{name: "broken pipe", err: syscall.EPIPE, retryable: true},
		{name: "wrapped refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), retryable: true},
		{name: "op error", err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, retryable: true},
		{name: "deadline", err: errors.New("context deadline exceeded"), retryable: true},
		{name: "rate limited", err: errors.New("429 Too Many Requests"), retryable: true},
		{name: "rate limit text", err: errors.New("project rate limit reached"), retryable: true},
		{name: "bad gateway", err: errors.New("502 Bad Gateway"), retryable: true},
		{name: "unavailable", err: errors.New("Service Unavailable"), retryable: true},
		{name: "pool", err: errors.New("no available connection"), retryable: true},
		{name: "execution reverted", err: errors.New("execution reverted"), retryable: false},
		{name: "invalid params", err: errors.New("invalid argument 0: hex string without 0x prefix"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		InitialBackoff:    common.NewDuration(time.Second),
		MaxBackoff:        common.NewDuration(5 * time.Second),
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{attempt: 1, min: 0, max: 0},
		{attempt: 2, min: 750 * time.Millisecond, max: 1250 * time.Millisecond},
		{attempt: 3, min: 1500 * time.Millisecond, max: 2500 * time.Millisecond},
		{attempt: 4, min: 3 * time.Second, max: 5 * time.Second},
		{attempt: 10, min: 3750 * time.Millisecond, max: 6250 * time.Millisecond},
	}

	for _, tt := range tests {
		for range 10 {
			backoff := calculateBackoff(tt.attempt, cfg)
			assert.GreaterOrEqual(t, backoff, tt.min, "attempt %d", tt.attempt)
			assert.LessOrEqual(t, backoff, tt.max, "attempt %d", tt.attempt)
		}
	}
}

func TestRetryWithBackoff(t *testing.T) {
	permanent := errors.New("invalid parameter")
	transient := &timeoutError{msg: "temporary"}

	tests := []struct {
		name        string
		cfg         *config.RetryConfig
		failures    int
		failWith    error
		wantCalls   int
		wantErrIs   error
		errContains string
	}{
		{name: "first attempt", cfg: quickRetry(3), wantCalls: 1},
		{name: "after retries", cfg: quickRetry(5), failures: 2, failWith: transient, wantCalls: 3},
		{
			name: "non retryable", cfg: quickRetry(5), failures: 10, failWith: permanent,
			wantCalls: 1, wantErrIs: permanent, errContains: "non-retryable error",
		},
		{
			name: "exhausted", cfg: quickRetry(3), failures: 10, failWith: transient,
			wantCalls: 3, wantErrIs: transient, errContains: "all 3 attempts failed",
		},
		{name: "nil config success", cfg: nil, wantCalls: 1},
		{name: "nil config error", cfg: nil, failures: 10, failWith: permanent, wantCalls: 1, wantErrIs: permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryWithBackoff(context.Background(), tt.cfg, logger.NewNopLogger(), "eth_getLogs", func() error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			require.Equal(t, tt.wantCalls, calls)
			if tt.wantErrIs == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErrIs)
			if tt.errContains != "" {
				require.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := retryWithBackoff(ctx, quickRetry(5), logger.NewNopLogger(), "eth_getLogs", func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return &timeoutError{msg: "temporary"}
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), "context cancelled")
	require.Equal(t, 2, calls)
}

func TestRetryWithBackoff_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	cfg := &config.RetryConfig{
		MaxAttempts:       10,
		InitialBackoff:    common.NewDuration(100 * time.Millisecond),
		MaxBackoff:        common.NewDuration(time.Second),
		BackoffMultiplier: 2.0,
	}

	calls := 0
	err := retryWithBackoff(ctx, cfg, logger.NewNopLogger(), "eth_getLogs", func() error {
		calls++
		return &timeoutError{msg: "temporary"}
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, calls, 10)
}
