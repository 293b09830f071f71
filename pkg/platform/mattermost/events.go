// Copyright 2024-2026 Aiku AI

package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/telebridge/pkg/platform"
)

// reconnectDelay paces WebSocket reconnection attempts.
const reconnectDelay = 5 * time.Second

// Subscribe connects to the Mattermost WebSocket and invokes handler for
// each post created, edited, or deleted in the bridged channel, in the
// order the server delivers them. It reconnects on connection loss and
// returns only when ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, handler func(platform.Event)) error {
	wsURL := httpToWS(c.cfg.ServerURL)
	for {
		ws, err := model.NewWebSocketClient4(wsURL, c.cfg.Token)
		if err != nil {
			c.log.Warn().Err(err).Str("ws_url", wsURL).Msg("WebSocket connect failed, retrying")
			select {
			case <-time.After(reconnectDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		ws.Listen()
		c.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")

		if err := c.readEvents(ctx, ws, handler); err != nil {
			ws.Close()
			return err
		}
		ws.Close()
		c.log.Warn().Msg("WebSocket event channel closed, reconnecting")
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readEvents drains the WebSocket until the channel closes (returns nil)
// or ctx is cancelled (returns ctx.Err()).
func (c *Client) readEvents(ctx context.Context, ws *model.WebSocketClient, handler func(platform.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wsEvt, ok := <-ws.EventChannel:
			if !ok {
				return nil
			}
			if wsEvt == nil {
				continue
			}
			evt, err := c.parseEvent(ctx, wsEvt)
			if err != nil {
				c.log.Warn().Err(err).
					Str("event_type", string(wsEvt.EventType())).
					Msg("Dropping unparseable event")
				continue
			}
			if evt == nil {
				continue
			}
			handler(*evt)
		}
	}
}

// parseEvent dispatches on the WebSocket event type. Returns (nil, nil)
// to skip silently, (nil, err) to log and drop, or an event to relay.
func (c *Client) parseEvent(ctx context.Context, evt *model.WebSocketEvent) (*platform.Event, error) {
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		return c.parsePostedEvent(ctx, evt)
	case model.WebsocketEventPostEdited:
		return c.parsePostEditedEvent(evt)
	case model.WebsocketEventPostDeleted:
		return c.parsePostDeletedEvent(evt)
	default:
		return nil, nil
	}
}

// parsePostedEvent extracts a newly created post, applying echo
// prevention: the bridge's own posts come back on the socket under the
// bot's user ID and must not be relayed again.
func (c *Client) parsePostedEvent(ctx context.Context, evt *model.WebSocketEvent) (*platform.Event, error) {
	post, err := c.decodePost(evt)
	if post == nil || err != nil {
		return nil, err
	}
	if post.Type != "" && post.Type != model.PostTypeDefault {
		// Joins, leaves, headers changes and other system posts.
		return nil, nil
	}

	out := c.postToEvent(platform.EventCreate, post)
	out.AuthorName = c.senderName(ctx, evt, post.UserId)
	out.AvatarURL = c.avatarURL(post.UserId)

	for _, fileID := range post.FileIds {
		att, err := c.fileAttachment(ctx, fileID)
		if err != nil {
			c.log.Warn().Err(err).Str("file_id", fileID).Msg("Failed to resolve attachment info")
			continue
		}
		out.Attachments = append(out.Attachments, att)
	}
	return out, nil
}

func (c *Client) parsePostEditedEvent(evt *model.WebSocketEvent) (*platform.Event, error) {
	post, err := c.decodePost(evt)
	if post == nil || err != nil {
		return nil, err
	}
	out := c.postToEvent(platform.EventEdit, post)
	if post.EditAt > 0 {
		out.Timestamp = time.UnixMilli(post.EditAt)
	}
	return out, nil
}

func (c *Client) parsePostDeletedEvent(evt *model.WebSocketEvent) (*platform.Event, error) {
	post, err := c.decodePost(evt)
	if post == nil || err != nil {
		return nil, err
	}
	out := c.postToEvent(platform.EventDelete, post)
	if post.DeleteAt > 0 {
		out.Timestamp = time.UnixMilli(post.DeleteAt)
	}
	return out, nil
}

// decodePost pulls the post payload out of a WebSocket event and applies
// the filters shared by all post event kinds. Returns (nil, nil) to skip.
func (c *Client) decodePost(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("post event missing post data")
	}
	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("unmarshal post: %w", err)
	}
	if post.ChannelId != c.cfg.ChannelID {
		return nil, nil
	}
	if post.UserId == c.botUserID {
		return nil, nil
	}
	return &post, nil
}

func (c *Client) postToEvent(kind platform.EventKind, post *model.Post) *platform.Event {
	return &platform.Event{
		Kind:            kind,
		Platform:        c.Name(),
		NativeID:        post.Id,
		ChannelID:       post.ChannelId,
		AuthorID:        post.UserId,
		Text:            post.Message,
		ReplyToNativeID: post.RootId,
		Timestamp:       time.UnixMilli(post.CreateAt),
	}
}

// senderName prefers the sender_name the server includes on posted
// events, falling back to a user lookup.
func (c *Client) senderName(ctx context.Context, evt *model.WebSocketEvent, userID string) string {
	if name, ok := evt.GetData()["sender_name"].(string); ok && name != "" {
		return strings.TrimPrefix(name, "@")
	}
	user, _, err := c.api.GetUser(ctx, userID, "")
	if err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to resolve sender name")
		return userID
	}
	return user.Username
}

func (c *Client) avatarURL(userID string) string {
	return fmt.Sprintf("%s/api/v4/users/%s/image", strings.TrimSuffix(c.cfg.ServerURL, "/"), userID)
}

func (c *Client) fileAttachment(ctx context.Context, fileID string) (platform.Attachment, error) {
	info, resp, err := c.api.GetFileInfo(ctx, fileID)
	if err != nil {
		return platform.Attachment{}, c.classify("get_file_info", resp, err)
	}
	return platform.Attachment{
		NativeID:  fileID,
		FileName:  info.Name,
		MimeType:  info.MimeType,
		SizeBytes: info.Size,
	}, nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
