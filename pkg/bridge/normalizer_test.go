// Copyright 2024-2026 Aiku AI

package bridge

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/identity"
	"github.com/aiku/telebridge/pkg/platform"
)

func newTestNormalizer(t *testing.T) (*Normalizer, *identity.Mapper) {
	t.Helper()
	mapper, err := identity.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("open identity store: %v", err)
	}
	t.Cleanup(func() { _ = mapper.Close() })
	return NewNormalizer(mapper, zerolog.Nop()), mapper
}

func TestNormalizeCreateAssignsCanonical(t *testing.T) {
	t.Parallel()
	n, mapper := newTestNormalizer(t)

	out, err := n.Normalize(platform.Event{
		Kind:       platform.EventCreate,
		Platform:   "alpha",
		NativeID:   "a1",
		AuthorName: "alice",
		Text:       "hi",
		Timestamp:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out == nil || out.CanonicalID == "" {
		t.Fatalf("normalized = %+v, want canonical assigned", out)
	}
	canonical, ok, _ := mapper.Resolve("alpha", "a1")
	if !ok || canonical != out.CanonicalID {
		t.Errorf("store canonical = %q ok=%v, want %q", canonical, ok, out.CanonicalID)
	}
}

func TestNormalizeDuplicateCreateSuppressed(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	evt := platform.Event{Kind: platform.EventCreate, Platform: "alpha", NativeID: "a1", Text: "hi"}
	if _, err := n.Normalize(evt); err != nil {
		t.Fatalf("first Normalize: %v", err)
	}
	out, err := n.Normalize(evt)
	if err != nil {
		t.Fatalf("second Normalize: %v", err)
	}
	if out != nil {
		t.Errorf("duplicate create normalized to %+v, want nil", out)
	}
}

func TestNormalizeEmptyCreateSkipped(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	out, err := n.Normalize(platform.Event{Kind: platform.EventCreate, Platform: "alpha", NativeID: "a1"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out != nil {
		t.Errorf("empty create normalized to %+v, want nil", out)
	}
}

func TestNormalizeMalformedEvents(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	cases := []struct {
		name string
		evt  platform.Event
	}{
		{"missing native id", platform.Event{Kind: platform.EventCreate, Platform: "alpha", Text: "hi"}},
		{"missing platform", platform.Event{Kind: platform.EventCreate, NativeID: "a1", Text: "hi"}},
		{"unknown kind", platform.Event{Kind: platform.EventKind(42), Platform: "alpha", NativeID: "a1"}},
	}
	for _, tc := range cases {
		if _, err := n.Normalize(tc.evt); err == nil {
			t.Errorf("%s: Normalize accepted the event", tc.name)
		}
	}
}

func TestNormalizeOrphanEditAndDelete(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	for _, kind := range []platform.EventKind{platform.EventEdit, platform.EventDelete} {
		out, err := n.Normalize(platform.Event{Kind: kind, Platform: "alpha", NativeID: "ghost", Text: "x"})
		if err != nil {
			t.Fatalf("%s: Normalize: %v", kind, err)
		}
		if out == nil {
			t.Fatalf("%s: normalized to nil, want orphan event", kind)
		}
		if out.CanonicalID != "" {
			t.Errorf("%s: CanonicalID = %q, want empty for orphan", kind, out.CanonicalID)
		}
	}
}

func TestNormalizeEditOfKnownMessage(t *testing.T) {
	t.Parallel()
	n, _ := newTestNormalizer(t)

	created, err := n.Normalize(platform.Event{Kind: platform.EventCreate, Platform: "alpha", NativeID: "a1", Text: "hi"})
	if err != nil {
		t.Fatalf("Normalize create: %v", err)
	}
	out, err := n.Normalize(platform.Event{Kind: platform.EventEdit, Platform: "alpha", NativeID: "a1", Text: "hi!"})
	if err != nil {
		t.Fatalf("Normalize edit: %v", err)
	}
	if out.CanonicalID != created.CanonicalID {
		t.Errorf("edit canonical = %q, want %q", out.CanonicalID, created.CanonicalID)
	}
}
