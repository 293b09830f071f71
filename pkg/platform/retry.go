// Copyright 2024-2026 Aiku AI

package platform

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy is an explicit, testable retry policy passed into adapters
// and the media pipeline. Zero values fall back to the defaults below.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Jitter          float64
	HonorServerHint bool
}

// DefaultRetryPolicy matches the behavior expected of outbound adapters:
// five attempts, exponential backoff from 250ms capped at 30s, 20% jitter,
// and server wait hints honored.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       250 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		Jitter:          0.2,
		HonorServerHint: true,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// Backoff returns the delay before the given retry. attempt is zero-based:
// Backoff(0) is the delay after the first failure.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		spread := float64(delay) * p.Jitter
		delay += time.Duration(rand.Float64()*2*spread - spread)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// delayFor picks the wait before the next attempt, preferring a server
// hint over computed backoff when the policy honors hints.
func (p RetryPolicy) delayFor(err error, attempt int) time.Duration {
	if p.HonorServerHint && KindOf(err) == KindRateLimited {
		if hint := RetryAfterHint(err); hint > 0 {
			return hint
		}
	}
	return p.Backoff(attempt)
}

// Do runs fn with the policy's retry semantics: transient and rate-limit
// failures are retried with backoff up to MaxAttempts, everything else
// surfaces immediately. The last error is returned when attempts run out.
func Do[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	policy = policy.normalized()
	var zero T
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, Transient(err)
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == policy.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, lastErr
		case <-time.After(policy.delayFor(err, attempt)):
		}
	}
	return zero, lastErr
}
