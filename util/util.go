// Package util provides utility functions for common tasks.
//
// Includes robust timing, randomization, and context handling utilities.
package util

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"
)

// --------------------------------------------------------------------------------
// Constants

const (
	// DefaultMinWait is the minimum wait duration when invalid or zero.
	DefaultMinWait = time.Millisecond
	// DefaultMaxWait is the default maximum wait time if unspecified.
	DefaultMaxWait = 32 * time.Second
	// DefaultJitterFactor is the fraction of wait time used for jitter when requested.
	DefaultJitterFactor = 0.5
	// maxSafeShift prevents integer overflow in exponential backoff calculations.
	// It represents the maximum shift (2^62) before hitting int64 limits.
	maxSafeShift = 62
)

// --------------------------------------------------------------------------------
// Utility Functions

// Backoff computes the exponential backoff delay for a retry attempt.
//
// The delay is min(maxWait, base * 2^(attempt-1)), with attempt treated as
// 1-based (0 is promoted to 1). Inputs are normalized: a non-positive base
// falls back to DefaultMinWait and a non-positive maxWait to DefaultMaxWait.
// The result is deterministic; callers that want jitter add it themselves
// or use Wait.
func Backoff(attempt uint, base, maxWait time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultMinWait
	}

	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	attempt = max(attempt, 1)

	shift := attempt - 1
	if shift > maxSafeShift { // Prevent overflow beyond 2^62.
		return maxWait
	}

	// Check for potential overflow before shifting.
	if maxShifted := math.MaxInt64 / base; maxShifted < 1<<shift {
		return maxWait
	}

	return min(base*(1<<shift), maxWait)
}

// Wait delays execution with exponential backoff and optional jitter.
//
// The delay is Backoff(attempt, base, maxWait) plus a random jitter of up
// to jitterFactor of the delay (0 disables jitter; out-of-range values
// fall back to DefaultJitterFactor). It returns nil once the delay
// elapses, or ctx.Err() if the context is cancelled first.
func Wait(ctx context.Context, attempt uint, base, maxWait time.Duration, jitterFactor float64) error {
	if jitterFactor < 0 || jitterFactor > 1 {
		jitterFactor = DefaultJitterFactor
	}

	wait := Backoff(attempt, base, maxWait)

	var jitter time.Duration

	if maxJitter := time.Duration(float64(wait) * jitterFactor); maxJitter > 0 {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(maxJitter)))
		if err != nil {
			return fmt.Errorf("failed to generate jitter: %w", err)
		}

		jitter = time.Duration(j.Int64())
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait + jitter):
		return nil
	}
}
