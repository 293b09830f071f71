// Copyright 2024-2026 Aiku AI

// Package mattermost implements the Mattermost side of the bridge: an
// outbound client over the official REST API and a push ingress over the
// Mattermost WebSocket.
package mattermost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"go.mau.fi/util/retryafter"

	"github.com/aiku/telebridge/pkg/format"
	"github.com/aiku/telebridge/pkg/platform"
)

// defaultMaxFileBytes matches the default Mattermost server upload limit.
const defaultMaxFileBytes = 100 * 1024 * 1024

// Config holds the Mattermost connection settings.
type Config struct {
	ServerURL    string
	Token        string
	ChannelID    string
	MaxFileBytes int64
}

// Client is an authenticated Mattermost bot connection bound to a single
// channel.
type Client struct {
	cfg       Config
	api       *model.Client4
	botUserID string
	log       zerolog.Logger
}

var (
	_ platform.Client     = (*Client)(nil)
	_ platform.PushSource = (*Client)(nil)
)

// New creates a client for the given server. Connect must be called
// before the client is used.
func New(cfg Config, log zerolog.Logger) *Client {
	api := model.NewAPIv4Client(cfg.ServerURL)
	api.SetToken(cfg.Token)
	return &Client{
		cfg: cfg,
		api: api,
		log: log.With().Str("component", "mm_client").Logger(),
	}
}

// Connect verifies the token and learns the bot's own user ID, which the
// ingress uses to drop echoes of the bridge's own posts.
func (c *Client) Connect(ctx context.Context) error {
	me, resp, err := c.api.GetMe(ctx, "")
	if err != nil {
		return c.classify("get_me", resp, err)
	}
	c.botUserID = me.Id
	c.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")
	return nil
}

func (c *Client) Name() string { return "mattermost" }

func (c *Client) MaxUploadBytes() int64 {
	if c.cfg.MaxFileBytes > 0 {
		return c.cfg.MaxFileBytes
	}
	return defaultMaxFileBytes
}

// Send uploads the message's attachments and creates a post carrying
// them. The post is attributed to the original author with a bold name
// prefix since everything goes out through the one bot account.
func (c *Client) Send(ctx context.Context, msg platform.Message) (string, error) {
	fileIDs := make([]string, 0, len(msg.Uploads))
	for _, up := range msg.Uploads {
		uploadResp, resp, err := c.api.UploadFile(ctx, up.Data, c.cfg.ChannelID, up.FileName)
		if err != nil {
			return "", c.classify("upload_file", resp, err)
		}
		if len(uploadResp.FileInfos) == 0 {
			return "", platform.Permanent(fmt.Errorf("upload of %s returned no file info", up.FileName))
		}
		fileIDs = append(fileIDs, uploadResp.FileInfos[0].Id)
	}

	text := msg.Text
	if msg.ReplyDegraded {
		text = format.ReplyFallbackMarkdown(msg.ReplyFallbackAuthor) + text
	}
	text = format.AuthorPrefixMarkdown(msg.AuthorDisplay, text)

	post := &model.Post{
		ChannelId: c.cfg.ChannelID,
		Message:   text,
		FileIds:   fileIDs,
		RootId:    msg.ReplyToNativeID,
	}
	if msg.AvatarURL != "" {
		// Honored when the server allows integrations to override
		// post icons; otherwise the server drops the prop.
		post.AddProp("override_icon_url", msg.AvatarURL)
	}
	created, resp, err := c.api.CreatePost(ctx, post)
	if err != nil {
		return "", c.classify("create_post", resp, err)
	}
	return created.Id, nil
}

// Edit patches the post's text. The author prefix is part of the text the
// engine passes in, so edits keep their attribution.
func (c *Client) Edit(ctx context.Context, nativeID, text string) error {
	patch := &model.PostPatch{Message: &text}
	_, resp, err := c.api.PatchPost(ctx, nativeID, patch)
	if err != nil {
		return c.classify("patch_post", resp, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, nativeID string) error {
	resp, err := c.api.DeletePost(ctx, nativeID)
	if err != nil {
		return c.classify("delete_post", resp, err)
	}
	return nil
}

func (c *Client) Download(ctx context.Context, att platform.Attachment) ([]byte, error) {
	data, resp, err := c.api.GetFile(ctx, att.NativeID)
	if err != nil {
		return nil, c.classify("get_file", resp, err)
	}
	return data, nil
}

// classify maps a Mattermost API error onto the bridge error taxonomy.
// Client-side failures with no HTTP status count as transient.
func (c *Client) classify(op string, resp *model.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	var appErr *model.AppError
	if status == 0 && errors.As(err, &appErr) {
		status = appErr.StatusCode
	}

	wrapped := fmt.Errorf("mattermost %s: %w", op, err)
	switch {
	case status == http.StatusTooManyRequests:
		after := 5 * time.Second
		if resp != nil {
			after = retryafter.Parse(resp.Header.Get("Retry-After"), after)
		}
		return platform.RateLimited(wrapped, after)
	case status == http.StatusRequestEntityTooLarge:
		return platform.MediaTooLarge(wrapped)
	case status >= 400 && status < 500:
		return platform.Permanent(wrapped)
	default:
		return platform.Transient(wrapped)
	}
}
