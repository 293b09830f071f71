// Copyright 2024-2026 Aiku AI

package platform

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastPolicy keeps test runtime negligible.
func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		BaseDelay:       time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		HonorServerHint: true,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	t.Parallel()
	calls := 0
	got, err := Do(context.Background(), fastPolicy(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: unexpected error %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Errorf("Do: got %q after %d calls, want %q after 1", got, calls, "ok")
	}
}

func TestDoRetriesTransient(t *testing.T) {
	t.Parallel()
	calls := 0
	got, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Transient(errors.New("flaky"))
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: unexpected error %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("Do: got %d after %d calls, want 42 after 3", got, calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(errors.New("unsupported"))
	})
	if calls != 1 {
		t.Errorf("Do: permanent error retried %d times, want 1 call", calls)
	}
	if KindOf(err) != KindPermanent {
		t.Errorf("Do: got kind %v, want permanent", KindOf(err))
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, Transient(errors.New("always down"))
	})
	if calls != 4 {
		t.Errorf("Do: got %d calls, want 4", calls)
	}
	if err == nil || KindOf(err) != KindTransient {
		t.Errorf("Do: got %v, want transient error", err)
	}
}

func TestDoHonorsServerHint(t *testing.T) {
	t.Parallel()
	hint := 30 * time.Millisecond
	calls := 0
	start := time.Now()
	_, err := Do(context.Background(), fastPolicy(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, RateLimited(errors.New("429"), hint)
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Do: unexpected error %v", err)
	}
	if elapsed := time.Since(start); elapsed < hint {
		t.Errorf("Do: finished in %v, want at least the %v server hint", elapsed, hint)
	}
}

func TestDoRespectsContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, RetryPolicy{MaxAttempts: 10, BaseDelay: time.Hour}, func(context.Context) (int, error) {
			calls++
			return 0, Transient(errors.New("down"))
		})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Do: want error after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("Do: did not return after context cancel")
	}
	if calls != 1 {
		t.Errorf("Do: got %d calls before cancel, want 1", calls)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: 80 * time.Millisecond}
	if d0, d2 := p.Backoff(0), p.Backoff(2); d2 <= d0 {
		t.Errorf("Backoff: attempt 2 (%v) should exceed attempt 0 (%v)", d2, d0)
	}
	if d := p.Backoff(20); d > p.MaxDelay {
		t.Errorf("Backoff: got %v, want capped at %v", d, p.MaxDelay)
	}
}

func TestBackoffJitterStaysNonNegative(t *testing.T) {
	t.Parallel()
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second, Jitter: 1.0}
	for i := 0; i < 100; i++ {
		if d := p.Backoff(0); d < 0 {
			t.Fatalf("Backoff: got negative delay %v", d)
		}
	}
}
