// Copyright 2024-2026 Aiku AI

// Package platform defines the contract between the sync engine and the
// thin per-platform clients, plus the outbound adapter that wraps every
// platform call with rate limiting and retry.
package platform

import (
	"context"
	"time"
)

// EventKind identifies the type of a native platform event.
type EventKind int

const (
	EventCreate EventKind = iota
	EventEdit
	EventDelete
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventEdit:
		return "edit"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Attachment describes a file attached to a native platform message. It is
// a reference only; bytes are fetched by the media pipeline via Download.
type Attachment struct {
	NativeID  string
	URL       string
	FileName  string
	MimeType  string
	SizeBytes int64
}

// Event is a single native platform event, parsed out of the platform's
// wire format by the platform client but still carrying native IDs. The
// bridge normalizer turns it into a canonical sync event.
type Event struct {
	Kind            EventKind
	Platform        string
	NativeID        string
	ChannelID       string
	AuthorID        string
	AuthorName      string
	AvatarURL       string
	Text            string
	ReplyToNativeID string
	Attachments     []Attachment
	Timestamp       time.Time
}

// Upload is a file payload ready to be sent to a destination platform.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// Message is an outbound message. Text is in the bridge's canonical
// markdown form; clients convert it to their native format. AuthorDisplay
// carries the original author's name so the destination client can render
// an identity prefix; AvatarURL is the author's avatar for platforms that
// can override the sender icon. ReplyToNativeID, when set, is a native ID on the
// destination platform; ReplyDegraded is set instead when the reply
// target has no mapping there, telling the client to render a textual
// annotation naming ReplyFallbackAuthor (which may be empty when the
// original author is unknown).
type Message struct {
	Text                string
	AuthorDisplay       string
	AvatarURL           string
	ReplyToNativeID     string
	ReplyDegraded       bool
	ReplyFallbackAuthor string
	Uploads             []Upload
}

// Client is the abstract send/edit/delete/fetch contract each platform
// client implements. Uploads are folded into Send because not every
// platform has a standalone upload primitive; within one Send, uploads are
// delivered sequentially in slice order.
type Client interface {
	Name() string
	Send(ctx context.Context, msg Message) (nativeID string, err error)
	Edit(ctx context.Context, nativeID, text string) error
	Delete(ctx context.Context, nativeID string) error
	Download(ctx context.Context, att Attachment) ([]byte, error)
	// MaxUploadBytes is the platform's attachment size ceiling. Larger
	// attachments are skipped by the media pipeline before Send.
	MaxUploadBytes() int64
}

// PushSource is implemented by platforms that deliver events over a
// persistent connection. The handler is invoked for each event; Subscribe
// blocks until ctx is cancelled or the connection fails permanently.
type PushSource interface {
	Subscribe(ctx context.Context, handler func(Event)) error
}

// PollSource is implemented by platforms that expose a cursor-based fetch.
// FetchEvents blocks up to the platform's poll timeout and returns the
// events after cursor together with the next cursor value.
type PollSource interface {
	FetchEvents(ctx context.Context, cursor string) ([]Event, string, error)
}
