// Copyright 2024-2026 Aiku AI

package platform

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a platform call failure. Every error crossing the
// adapter boundary is one of these; anything unclassified is treated as
// transient so it gets a bounded retry rather than a silent drop.
type Kind int

const (
	// KindTransient covers network hiccups, 5xx responses and timeouts.
	KindTransient Kind = iota
	// KindRateLimited is a 429-style response, optionally with a server
	// supplied wait hint.
	KindRateLimited
	// KindPermanent is invalid or unsupported content; never retried.
	KindPermanent
	// KindMediaTooLarge means an attachment exceeds the destination's
	// ceiling; the message degrades to text plus a placeholder.
	KindMediaTooLarge
	// KindMappingNotFound means a native ID has no identity mapping yet.
	KindMappingNotFound
	// KindConsistency means two canonical IDs were claimed for one native
	// ID. Fatal to the event, loud in logs, never retried.
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindPermanent:
		return "permanent"
	case KindMediaTooLarge:
		return "media_too_large"
	case KindMappingNotFound:
		return "mapping_not_found"
	case KindConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

// Error is the typed failure produced at the platform client / adapter
// boundary. RetryAfter is only meaningful for KindRateLimited.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Err: err}
}

// RateLimited wraps err as a rate-limit failure with an optional server
// wait hint (zero means no hint).
func RateLimited(err error, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) *Error {
	return &Error{Kind: KindPermanent, Err: err}
}

// MediaTooLarge wraps err as an attachment size violation.
func MediaTooLarge(err error) *Error {
	return &Error{Kind: KindMediaTooLarge, Err: err}
}

// MappingNotFound wraps err as a missing identity mapping.
func MappingNotFound(err error) *Error {
	return &Error{Kind: KindMappingNotFound, Err: err}
}

// Consistency wraps err as an identity store consistency violation.
func Consistency(err error) *Error {
	return &Error{Kind: KindConsistency, Err: err}
}

// KindOf extracts the failure kind from err. Unclassified errors are
// transient.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindTransient
}

// RetryAfterHint returns the server wait hint attached to err, or zero.
func RetryAfterHint(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited:
		return true
	default:
		return false
	}
}
