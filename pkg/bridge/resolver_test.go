// Copyright 2024-2026 Aiku AI

package bridge

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/identity"
)

func newTestResolver(t *testing.T) (*Resolver, *identity.Mapper) {
	t.Helper()
	mapper, err := identity.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open identity store: %v", err)
	}
	t.Cleanup(func() { _ = mapper.Close() })
	return NewResolver(mapper), mapper
}

func relay(t *testing.T, mapper *identity.Mapper, srcNative, author, destNative string, status identity.Status) string {
	t.Helper()
	canonical, _, err := mapper.EnsureCanonical("alpha", srcNative, author)
	if err != nil {
		t.Fatalf("EnsureCanonical: %v", err)
	}
	if destNative != "" {
		if err := mapper.Record(canonical, "beta", destNative, status); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	return canonical
}

func TestResolveReplyToRelayedMessage(t *testing.T) {
	t.Parallel()
	r, mapper := newTestResolver(t)
	relay(t, mapper, "a1", "alice", "b1", identity.StatusDelivered)

	destID, fallback, err := r.ResolveReply("alpha", "a1", "beta")
	if err != nil {
		t.Fatalf("ResolveReply: %v", err)
	}
	if destID != "b1" || fallback != "" {
		t.Errorf("got (%q, %q), want (\"b1\", \"\")", destID, fallback)
	}
}

func TestResolveReplyToUnrelayedMessageFallsBack(t *testing.T) {
	t.Parallel()
	r, mapper := newTestResolver(t)
	relay(t, mapper, "a1", "carol", "", identity.StatusPending)

	destID, fallback, err := r.ResolveReply("alpha", "a1", "beta")
	if err != nil {
		t.Fatalf("ResolveReply: %v", err)
	}
	if destID != "" || fallback != "carol" {
		t.Errorf("got (%q, %q), want (\"\", \"carol\")", destID, fallback)
	}
}

func TestResolveReplyToUnknownMessage(t *testing.T) {
	t.Parallel()
	r, _ := newTestResolver(t)

	destID, fallback, err := r.ResolveReply("alpha", "never-seen", "beta")
	if err != nil {
		t.Fatalf("ResolveReply: %v", err)
	}
	if destID != "" || fallback != "" {
		t.Errorf("got (%q, %q), want empty result", destID, fallback)
	}
}

func TestResolveReplyToDeletedMessageFallsBack(t *testing.T) {
	t.Parallel()
	r, mapper := newTestResolver(t)
	canonical := relay(t, mapper, "a1", "dave", "b1", identity.StatusDelivered)
	if _, err := mapper.MarkDeleted(canonical); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}

	destID, fallback, err := r.ResolveReply("alpha", "a1", "beta")
	if err != nil {
		t.Fatalf("ResolveReply: %v", err)
	}
	if destID != "" || fallback != "dave" {
		t.Errorf("got (%q, %q), want (\"\", \"dave\")", destID, fallback)
	}
}

func TestResolveReplyToFailedDeliveryFallsBack(t *testing.T) {
	t.Parallel()
	r, mapper := newTestResolver(t)
	relay(t, mapper, "a1", "erin", "b1", identity.StatusFailed)

	destID, fallback, err := r.ResolveReply("alpha", "a1", "beta")
	if err != nil {
		t.Fatalf("ResolveReply: %v", err)
	}
	if destID != "" || fallback != "erin" {
		t.Errorf("got (%q, %q), want (\"\", \"erin\")", destID, fallback)
	}
}
