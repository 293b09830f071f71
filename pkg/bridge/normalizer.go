// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/identity"
	"github.com/aiku/telebridge/pkg/platform"
)

// Normalizer turns native platform events into canonical sync events.
// Normalization is idempotent: re-ingesting a create that already has a
// mapping (a poll replay after a crash, a WebSocket redelivery) yields no
// event at all.
type Normalizer struct {
	mapper *identity.Mapper
	log    zerolog.Logger
}

func NewNormalizer(mapper *identity.Mapper, log zerolog.Logger) *Normalizer {
	return &Normalizer{
		mapper: mapper,
		log:    log.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize returns (nil, nil) for events the bridge should silently
// skip, and an error for events that are malformed and must be dropped
// with a log entry.
func (n *Normalizer) Normalize(evt platform.Event) (*SyncEvent, error) {
	if evt.NativeID == "" {
		return nil, fmt.Errorf("event from %s has no native ID", evt.Platform)
	}
	if evt.Platform == "" {
		return nil, fmt.Errorf("event %s has no source platform", evt.NativeID)
	}

	out := &SyncEvent{
		Kind:            evt.Kind,
		SourcePlatform:  evt.Platform,
		SourceNativeID:  evt.NativeID,
		AuthorName:      evt.AuthorName,
		AvatarURL:       evt.AvatarURL,
		Text:            evt.Text,
		ReplyToNativeID: evt.ReplyToNativeID,
		Attachments:     evt.Attachments,
		Timestamp:       evt.Timestamp,
	}

	switch evt.Kind {
	case platform.EventCreate:
		if evt.Text == "" && len(evt.Attachments) == 0 {
			return nil, nil
		}
		canonical, created, err := n.mapper.EnsureCanonical(evt.Platform, evt.NativeID, evt.AuthorName)
		if err != nil {
			return nil, err
		}
		if !created {
			n.log.Debug().
				Str("platform", evt.Platform).
				Str("native_id", evt.NativeID).
				Msg("Duplicate create suppressed")
			return nil, nil
		}
		out.CanonicalID = canonical

	case platform.EventEdit, platform.EventDelete:
		canonical, ok, err := n.mapper.Resolve(evt.Platform, evt.NativeID)
		if err != nil {
			return nil, err
		}
		if ok {
			out.CanonicalID = canonical
		}

	default:
		return nil, fmt.Errorf("unknown event kind %d from %s", evt.Kind, evt.Platform)
	}

	return out, nil
}
