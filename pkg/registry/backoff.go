package registry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 15 * time.Second
	defaultMultiplier     = 2.0
	defaultMaxJitter      = time.Second
)

// BackoffPolicy computes the wait between failed deliveries of a batch.
type BackoffPolicy struct {
	// InitialDelay is the wait after the first failure
	InitialDelay time.Duration

	// MaxDelay caps the exponential part of the wait
	MaxDelay time.Duration

	// Multiplier grows the delay after every failure
	Multiplier float64

	// MaxJitter bounds the uniform random [0, MaxJitter) added to every wait; 0 disables it
	MaxJitter time.Duration
}

// DefaultBackoffPolicy starts at 100ms, doubles up to 15s and adds up to 1s of jitter.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay: defaultInitialBackoff,
		MaxDelay:     defaultMaxBackoff,
		Multiplier:   defaultMultiplier,
		MaxJitter:    defaultMaxJitter,
	}
}

// Delay returns the capped exponential delay after the given number of consecutive
// failures (1 for the first failure), without jitter.
func (p BackoffPolicy) Delay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = defaultMultiplier
	}

	delay := float64(p.InitialDelay) * math.Pow(multiplier, float64(failures-1))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 1) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// Wait returns Delay(failures) plus uniform jitter in [0, MaxJitter).
func (p BackoffPolicy) Wait(failures int) time.Duration {
	wait := p.Delay(failures)
	if p.MaxJitter > 0 {
		wait += rand.N(p.MaxJitter)
	}
	return wait
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
