// Copyright 2024-2026 Aiku AI

package platform

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Adapter wraps a platform Client with the platform's token bucket, a
// per-call timeout, and the retry policy. All outbound traffic to one
// platform goes through a single Adapter so the bucket is shared across
// callers.
type Adapter struct {
	client  Client
	limiter *rate.Limiter
	retry   RetryPolicy
	timeout time.Duration
	log     zerolog.Logger
	onRetry func()
}

// SetRetryHook registers a callback invoked once per failed attempt that
// will be retried. Used to feed retry counters without coupling this
// package to a metrics library.
func (a *Adapter) SetRetryHook(fn func()) { a.onRetry = fn }

// NewAdapter builds an adapter around client. rps/burst configure the
// token bucket; timeout bounds each individual network attempt.
func NewAdapter(client Client, rps float64, burst int, policy RetryPolicy, timeout time.Duration, log zerolog.Logger) *Adapter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retry:   policy,
		timeout: timeout,
		log:     log.With().Str("component", "adapter").Str("platform", client.Name()).Logger(),
	}
}

// Name returns the wrapped platform's name.
func (a *Adapter) Name() string {
	return a.client.Name()
}

// MaxUploadBytes returns the wrapped platform's attachment ceiling.
func (a *Adapter) MaxUploadBytes() int64 {
	return a.client.MaxUploadBytes()
}

// call runs one platform operation through the token bucket with a
// per-attempt timeout, retried per policy.
func call[T any](ctx context.Context, a *Adapter, op string, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	result, err := Do(ctx, a.retry, func(ctx context.Context) (T, error) {
		attempt++
		if err := a.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, Transient(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		res, err := fn(callCtx)
		if err != nil && IsRetryable(err) {
			a.log.Warn().Err(err).
				Str("op", op).
				Int("attempt", attempt).
				Msg("Platform call failed, will retry")
			if a.onRetry != nil {
				a.onRetry()
			}
		}
		return res, err
	})
	if err != nil {
		a.log.Error().Err(err).
			Str("op", op).
			Int("attempts", attempt).
			Str("kind", KindOf(err).String()).
			Msg("Platform call failed")
	}
	return result, err
}

// Send delivers an outbound message and returns the destination-native ID.
func (a *Adapter) Send(ctx context.Context, msg Message) (string, error) {
	return call(ctx, a, "send", func(ctx context.Context) (string, error) {
		return a.client.Send(ctx, msg)
	})
}

// Edit replaces the text of an existing native message.
func (a *Adapter) Edit(ctx context.Context, nativeID, text string) error {
	_, err := call(ctx, a, "edit", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.client.Edit(ctx, nativeID, text)
	})
	return err
}

// Delete removes an existing native message.
func (a *Adapter) Delete(ctx context.Context, nativeID string) error {
	_, err := call(ctx, a, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.client.Delete(ctx, nativeID)
	})
	return err
}

// Download fetches attachment bytes from this platform.
func (a *Adapter) Download(ctx context.Context, att Attachment) ([]byte, error) {
	return call(ctx, a, "download", func(ctx context.Context) ([]byte, error) {
		return a.client.Download(ctx, att)
	})
}
