// Copyright 2024-2026 Aiku AI

package platform

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"transient", Transient(errors.New("conn reset")), KindTransient},
		{"rate_limited", RateLimited(errors.New("429"), time.Second), KindRateLimited},
		{"permanent", Permanent(errors.New("bad content")), KindPermanent},
		{"media_too_large", MediaTooLarge(errors.New("50MB")), KindMediaTooLarge},
		{"mapping_not_found", MappingNotFound(errors.New("no row")), KindMappingNotFound},
		{"consistency", Consistency(errors.New("two canonicals")), KindConsistency},
		{"unclassified", errors.New("anything"), KindTransient},
		{"wrapped", fmt.Errorf("send: %w", Permanent(errors.New("bad"))), KindPermanent},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%s): got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	t.Parallel()
	err := RateLimited(errors.New("429"), 7*time.Second)
	if got := RetryAfterHint(err); got != 7*time.Second {
		t.Errorf("RetryAfterHint: got %v, want 7s", got)
	}
	if got := RetryAfterHint(Transient(errors.New("x"))); got != 0 {
		t.Errorf("RetryAfterHint for transient: got %v, want 0", got)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	if !IsRetryable(Transient(errors.New("x"))) {
		t.Error("transient should be retryable")
	}
	if !IsRetryable(RateLimited(errors.New("x"), 0)) {
		t.Error("rate limited should be retryable")
	}
	if IsRetryable(Permanent(errors.New("x"))) {
		t.Error("permanent should not be retryable")
	}
	if IsRetryable(Consistency(errors.New("x"))) {
		t.Error("consistency should not be retryable")
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("inner")
	err := Transient(inner)
	if !errors.Is(err, inner) {
		t.Error("errors.Is should see the wrapped error")
	}
}
