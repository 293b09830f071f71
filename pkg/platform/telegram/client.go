// Copyright 2024-2026 Aiku AI

// Package telegram implements the Telegram side of the bridge over the
// Bot API: an outbound client for sending, editing, and deleting
// messages, and a poll ingress over getUpdates with a persisted offset.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/telebridge/pkg/format"
	"github.com/aiku/telebridge/pkg/platform"
)

const (
	defaultAPIURL = "https://api.telegram.org"

	// Bot API upload ceiling.
	defaultMaxFileBytes = 50 * 1024 * 1024

	defaultPollTimeout = 25 * time.Second
)

// Config holds the Telegram connection settings.
type Config struct {
	Token        string
	ChatID       int64
	APIURL       string
	PollTimeout  time.Duration
	MaxFileBytes int64
}

// Client talks to the Telegram Bot API for a single chat.
type Client struct {
	cfg      Config
	hc       *http.Client
	base     string
	fileBase string
	log      zerolog.Logger
}

var (
	_ platform.Client     = (*Client)(nil)
	_ platform.PollSource = (*Client)(nil)
)

// New creates a client for the given bot token and chat.
func New(cfg Config, log zerolog.Logger) *Client {
	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &Client{
		cfg:      cfg,
		hc:       &http.Client{Timeout: cfg.PollTimeout + 30*time.Second},
		base:     apiURL + "/bot" + cfg.Token,
		fileBase: apiURL + "/file/bot" + cfg.Token,
		log:      log.With().Str("component", "tg_client").Logger(),
	}
}

func (c *Client) Name() string { return "telegram" }

func (c *Client) MaxUploadBytes() int64 {
	if c.cfg.MaxFileBytes > 0 {
		return c.cfg.MaxFileBytes
	}
	return defaultMaxFileBytes
}

// apiError is the failure half of a Bot API response envelope.
type apiError struct {
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// user is a Telegram user as it appears on messages and updates.
type user struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func (u *user) displayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

type chat struct {
	ID int64 `json:"id"`
}

type photoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

type document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// message is the subset of a Telegram message the bridge reads.
type message struct {
	MessageID      int64       `json:"message_id"`
	From           *user       `json:"from"`
	Chat           chat        `json:"chat"`
	Date           int64       `json:"date"`
	EditDate       int64       `json:"edit_date"`
	Text           string      `json:"text"`
	Caption        string      `json:"caption"`
	ReplyToMessage *message    `json:"reply_to_message"`
	Photo          []photoSize `json:"photo"`
	Video          *document   `json:"video"`
	Audio          *document   `json:"audio"`
	Voice          *document   `json:"voice"`
	Document       *document   `json:"document"`
}

// call performs one Bot API method with a JSON body and decodes the
// result into out.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return platform.Permanent(fmt.Errorf("telegram %s: encode: %w", method, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+method, bytes.NewReader(body))
	if err != nil {
		return platform.Permanent(fmt.Errorf("telegram %s: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return platform.Transient(fmt.Errorf("telegram %s: %w", method, err))
	}
	defer resp.Body.Close()

	var envelope struct {
		Ok     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
		apiError
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return platform.Transient(fmt.Errorf("telegram %s: decode response: %w", method, err))
	}
	if !envelope.Ok {
		return c.classify(method, &envelope.apiError)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return platform.Transient(fmt.Errorf("telegram %s: decode result: %w", method, err))
		}
	}
	return nil
}

// classify maps a Bot API error onto the bridge error taxonomy.
func (c *Client) classify(method string, apiErr *apiError) error {
	wrapped := fmt.Errorf("telegram %s: %d %s", method, apiErr.ErrorCode, apiErr.Description)
	switch {
	case apiErr.ErrorCode == http.StatusTooManyRequests:
		after := 5 * time.Second
		if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
			after = time.Duration(apiErr.Parameters.RetryAfter) * time.Second
		}
		return platform.RateLimited(wrapped, after)
	case apiErr.ErrorCode == http.StatusRequestEntityTooLarge,
		strings.Contains(strings.ToLower(apiErr.Description), "too big"),
		strings.Contains(strings.ToLower(apiErr.Description), "too large"):
		return platform.MediaTooLarge(wrapped)
	case apiErr.ErrorCode >= 400 && apiErr.ErrorCode < 500:
		return platform.Permanent(wrapped)
	default:
		return platform.Transient(wrapped)
	}
}

// Send delivers the message to the configured chat. Text-only messages go
// out as one sendMessage call; attachments each become their own media
// message, with the text riding the first one as a caption.
func (c *Client) Send(ctx context.Context, msg platform.Message) (string, error) {
	text := format.MarkdownToHTML(msg.Text)
	if msg.ReplyDegraded {
		text = format.ReplyFallbackHTML(msg.ReplyFallbackAuthor) + text
	}
	text = format.AuthorPrefixHTML(msg.AuthorDisplay, text)

	if len(msg.Uploads) == 0 {
		payload := map[string]any{
			"chat_id":    c.cfg.ChatID,
			"text":       text,
			"parse_mode": "HTML",
		}
		if msg.ReplyToNativeID != "" {
			payload["reply_to_message_id"] = msg.ReplyToNativeID
		}
		var sent message
		if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
			return "", err
		}
		return strconv.FormatInt(sent.MessageID, 10), nil
	}

	// The first media message carries the caption and is the one the
	// canonical message maps to.
	firstID := ""
	for i, up := range msg.Uploads {
		caption := ""
		if i == 0 {
			caption = text
		}
		sent, err := c.sendMedia(ctx, up, caption, msg.ReplyToNativeID)
		if err != nil {
			if firstID != "" {
				return firstID, err
			}
			return "", err
		}
		if i == 0 {
			firstID = strconv.FormatInt(sent.MessageID, 10)
		}
	}
	return firstID, nil
}

// sendMedia picks the Bot API method by MIME type and uploads via
// multipart form data.
func (c *Client) sendMedia(ctx context.Context, up platform.Upload, caption, replyTo string) (*message, error) {
	method, field := "sendDocument", "document"
	switch {
	case strings.HasPrefix(up.MimeType, "image/"):
		method, field = "sendPhoto", "photo"
	case strings.HasPrefix(up.MimeType, "video/"):
		method, field = "sendVideo", "video"
	case strings.HasPrefix(up.MimeType, "audio/"):
		method, field = "sendAudio", "audio"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", strconv.FormatInt(c.cfg.ChatID, 10))
	if caption != "" {
		_ = w.WriteField("caption", caption)
		_ = w.WriteField("parse_mode", "HTML")
	}
	if replyTo != "" {
		_ = w.WriteField("reply_to_message_id", replyTo)
	}
	part, err := w.CreateFormFile(field, up.FileName)
	if err != nil {
		return nil, platform.Permanent(fmt.Errorf("telegram %s: %w", method, err))
	}
	if _, err := part.Write(up.Data); err != nil {
		return nil, platform.Permanent(fmt.Errorf("telegram %s: %w", method, err))
	}
	if err := w.Close(); err != nil {
		return nil, platform.Permanent(fmt.Errorf("telegram %s: %w", method, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+method, &buf)
	if err != nil {
		return nil, platform.Permanent(fmt.Errorf("telegram %s: %w", method, err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var sent message
	if err := c.do(req, method, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

// Edit rewrites the message text. Media messages carry their text as a
// caption, so a text edit that misses falls through to the caption.
func (c *Client) Edit(ctx context.Context, nativeID, text string) error {
	rendered := format.MarkdownToHTML(text)
	payload := map[string]any{
		"chat_id":    c.cfg.ChatID,
		"message_id": nativeID,
		"text":       rendered,
		"parse_mode": "HTML",
	}
	err := c.call(ctx, "editMessageText", payload, nil)
	if err != nil && strings.Contains(err.Error(), "no text in the message") {
		delete(payload, "text")
		payload["caption"] = rendered
		return c.call(ctx, "editMessageCaption", payload, nil)
	}
	return err
}

func (c *Client) Delete(ctx context.Context, nativeID string) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    c.cfg.ChatID,
		"message_id": nativeID,
	}, nil)
}

// Download resolves the attachment's file path via getFile and fetches
// the bytes from the file endpoint. The Bot API refuses files over 20
// MiB, which classify turns into a media-too-large error.
func (c *Client) Download(ctx context.Context, att platform.Attachment) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]any{"file_id": att.NativeID}, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, platform.Permanent(fmt.Errorf("telegram getFile: empty file path for %s", att.NativeID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileBase+"/"+file.FilePath, nil)
	if err != nil {
		return nil, platform.Permanent(fmt.Errorf("telegram download: %w", err))
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, platform.Transient(fmt.Errorf("telegram download: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, platform.Transient(fmt.Errorf("telegram download: status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, platform.Transient(fmt.Errorf("telegram download: %w", err))
	}
	return data, nil
}
