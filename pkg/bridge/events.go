// Copyright 2024-2026 Aiku AI

package bridge

import (
	"time"

	"github.com/aiku/telebridge/pkg/platform"
)

// SyncEvent is a platform event after normalization: it carries the
// canonical identity alongside the source-native one. For edits and
// deletes of messages the bridge has never seen, CanonicalID is empty
// and the orchestrator decides what to do with the orphan.
type SyncEvent struct {
	Kind            platform.EventKind
	CanonicalID     string
	SourcePlatform  string
	SourceNativeID  string
	AuthorName      string
	AvatarURL       string
	Text            string
	ReplyToNativeID string
	Attachments     []platform.Attachment
	Timestamp       time.Time
}
