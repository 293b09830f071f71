// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/aiku/telebridge/pkg/platform"
)

// update is one getUpdates entry. DeletedMessage is a shape emitted by
// Bot API proxies that synthesize deletion events; the stock API never
// sends it but accepting it costs nothing.
type update struct {
	UpdateID       int64    `json:"update_id"`
	Message        *message `json:"message"`
	EditedMessage  *message `json:"edited_message"`
	DeletedMessage *message `json:"deleted_message"`
}

// FetchEvents long-polls getUpdates starting at cursor and converts
// everything addressed to the configured chat. The returned cursor is
// the last update ID plus one and must be persisted by the caller so a
// restart never re-fetches acknowledged updates.
func (c *Client) FetchEvents(ctx context.Context, cursor string) ([]platform.Event, string, error) {
	payload := map[string]any{
		"timeout":         int(c.cfg.PollTimeout / time.Second),
		"allowed_updates": []string{"message", "edited_message"},
	}
	if cursor != "" {
		offset, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", platform.Permanent(err)
		}
		payload["offset"] = offset
	}

	var updates []update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, "", err
	}

	next := cursor
	var events []platform.Event
	for _, upd := range updates {
		next = strconv.FormatInt(upd.UpdateID+1, 10)
		evt := c.updateToEvent(ctx, upd)
		if evt == nil {
			continue
		}
		events = append(events, *evt)
	}
	return events, next, nil
}

// updateToEvent converts one update, or returns nil for updates the
// bridge does not relay (other chats, bot echoes, empty payloads).
func (c *Client) updateToEvent(ctx context.Context, upd update) *platform.Event {
	kind := platform.EventCreate
	msg := upd.Message
	switch {
	case upd.EditedMessage != nil:
		kind = platform.EventEdit
		msg = upd.EditedMessage
	case upd.DeletedMessage != nil:
		kind = platform.EventDelete
		msg = upd.DeletedMessage
	}
	if msg == nil {
		return nil
	}
	if msg.Chat.ID != c.cfg.ChatID {
		return nil
	}
	if msg.From != nil && msg.From.IsBot {
		// The bridge sends through a bot account; relaying bot messages
		// back would loop.
		return nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	evt := &platform.Event{
		Kind:      kind,
		Platform:  c.Name(),
		NativeID:  strconv.FormatInt(msg.MessageID, 10),
		ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
		Text:      text,
		Timestamp: time.Unix(msg.Date, 0),
	}
	if msg.EditDate > 0 {
		evt.Timestamp = time.Unix(msg.EditDate, 0)
	}
	if msg.From != nil {
		evt.AuthorID = strconv.FormatInt(msg.From.ID, 10)
		evt.AuthorName = msg.From.displayName()
	}
	if msg.ReplyToMessage != nil {
		evt.ReplyToNativeID = strconv.FormatInt(msg.ReplyToMessage.MessageID, 10)
	}
	if kind == platform.EventCreate {
		evt.AvatarURL = c.avatarURL(ctx, msg.From)
		evt.Attachments = attachmentsOf(msg)
	}
	return evt
}

// attachmentsOf maps the message's media onto attachment references.
// Photos come in multiple resolutions; only the largest is relayed.
func attachmentsOf(msg *message) []platform.Attachment {
	var atts []platform.Attachment
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		atts = append(atts, platform.Attachment{
			NativeID:  best.FileID,
			FileName:  "photo.jpg",
			MimeType:  "image/jpeg",
			SizeBytes: best.FileSize,
		})
	}
	for _, doc := range []*document{msg.Video, msg.Audio, msg.Voice, msg.Document} {
		if doc == nil {
			continue
		}
		name := doc.FileName
		if name == "" {
			name = "file"
		}
		atts = append(atts, platform.Attachment{
			NativeID:  doc.FileID,
			FileName:  name,
			MimeType:  doc.MimeType,
			SizeBytes: doc.FileSize,
		})
	}
	return atts
}

// avatarURL resolves the sender's profile photo to a fetchable URL,
// falling back to a generated initials avatar for users without one.
func (c *Client) avatarURL(ctx context.Context, from *user) string {
	if from == nil {
		return ""
	}
	fallback := "https://api.dicebear.com/7.x/initials/png?seed=" + url.QueryEscape(from.displayName())

	var photos struct {
		TotalCount int           `json:"total_count"`
		Photos     [][]photoSize `json:"photos"`
	}
	err := c.call(ctx, "getUserProfilePhotos", map[string]any{
		"user_id": from.ID,
		"limit":   1,
	}, &photos)
	if err != nil || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return fallback
	}

	var file struct {
		FilePath string `json:"file_path"`
	}
	fileID := photos.Photos[0][len(photos.Photos[0])-1].FileID
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &file); err != nil || file.FilePath == "" {
		return fallback
	}
	return c.fileBase + "/" + file.FilePath
}
