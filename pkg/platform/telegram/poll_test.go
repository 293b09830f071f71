// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/aiku/telebridge/pkg/platform"
)

func TestFetchEventsConvertsAndAdvancesCursor(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUpdates"] = `{"ok":true,"result":[
		{"update_id":10,"message":{"message_id":1,"chat":{"id":-100123},"date":1700000000,
			"from":{"id":5,"first_name":"Alice","last_name":"B"},"text":"hi"}},
		{"update_id":11,"edited_message":{"message_id":1,"chat":{"id":-100123},"date":1700000000,
			"edit_date":1700000060,"from":{"id":5,"first_name":"Alice"},"text":"hi there"}}
	]}`
	fake.Responses["getUserProfilePhotos"] = `{"ok":true,"result":{"total_count":0,"photos":[]}}`

	events, next, err := c.FetchEvents(context.Background(), "10")
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if next != "12" {
		t.Errorf("next cursor = %q, want 12", next)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Kind != platform.EventCreate || events[0].NativeID != "1" || events[0].AuthorName != "Alice B" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Kind != platform.EventEdit || events[1].Text != "hi there" {
		t.Errorf("events[1] = %+v", events[1])
	}
	if events[1].Timestamp.Unix() != 1700000060 {
		t.Errorf("edit timestamp = %v, want edit_date", events[1].Timestamp)
	}

	req := fake.requestsFor("getUpdates")[0].JSONBody
	if req["offset"].(float64) != 10 {
		t.Errorf("offset = %v, want 10", req["offset"])
	}
}

func TestFetchEventsEmptyKeepsCursor(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUpdates"] = `{"ok":true,"result":[]}`

	events, next, err := c.FetchEvents(context.Background(), "37")
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 0 || next != "37" {
		t.Errorf("got (%d events, cursor %q), want (0, 37)", len(events), next)
	}
}

func TestFetchEventsSkipsOtherChatsAndBots(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUpdates"] = `{"ok":true,"result":[
		{"update_id":20,"message":{"message_id":1,"chat":{"id":555},"date":1,"text":"other chat"}},
		{"update_id":21,"message":{"message_id":2,"chat":{"id":-100123},"date":1,
			"from":{"id":9,"is_bot":true,"first_name":"telebridge"},"text":"echo"}}
	]}`

	events, next, err := c.FetchEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
	// Skipped updates still advance the cursor so they are acknowledged.
	if next != "22" {
		t.Errorf("next cursor = %q, want 22", next)
	}
}

func TestFetchEventsPicksLargestPhoto(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUpdates"] = `{"ok":true,"result":[
		{"update_id":30,"message":{"message_id":3,"chat":{"id":-100123},"date":1,
			"from":{"id":5,"first_name":"Alice"},"caption":"look",
			"photo":[
				{"file_id":"small","width":90,"height":90,"file_size":100},
				{"file_id":"big","width":800,"height":600,"file_size":60000},
				{"file_id":"mid","width":320,"height":240,"file_size":9000}
			]}}
	]}`
	fake.Responses["getUserProfilePhotos"] = `{"ok":true,"result":{"total_count":0,"photos":[]}}`

	events, _, err := c.FetchEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	evt := events[0]
	if evt.Text != "look" {
		t.Errorf("caption text = %q", evt.Text)
	}
	if len(evt.Attachments) != 1 || evt.Attachments[0].NativeID != "big" {
		t.Errorf("attachments = %+v, want the largest photo", evt.Attachments)
	}
	if evt.Attachments[0].MimeType != "image/jpeg" {
		t.Errorf("mime = %q", evt.Attachments[0].MimeType)
	}
}

func TestFetchEventsCarriesReplyAndDocument(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUpdates"] = `{"ok":true,"result":[
		{"update_id":40,"message":{"message_id":8,"chat":{"id":-100123},"date":1,
			"from":{"id":5,"first_name":"Alice"},
			"reply_to_message":{"message_id":6,"chat":{"id":-100123},"date":1},
			"document":{"file_id":"doc1","file_name":"notes.txt","mime_type":"text/plain","file_size":321}}}
	]}`
	fake.Responses["getUserProfilePhotos"] = `{"ok":true,"result":{"total_count":0,"photos":[]}}`

	events, _, err := c.FetchEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	evt := events[0]
	if evt.ReplyToNativeID != "6" {
		t.Errorf("reply target = %q, want 6", evt.ReplyToNativeID)
	}
	if len(evt.Attachments) != 1 || evt.Attachments[0].FileName != "notes.txt" || evt.Attachments[0].SizeBytes != 321 {
		t.Errorf("attachments = %+v", evt.Attachments)
	}
}

func TestAvatarURL(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUserProfilePhotos"] = `{"ok":true,"result":{"total_count":1,"photos":[[
		{"file_id":"av-small","width":90,"height":90},
		{"file_id":"av-big","width":640,"height":640}
	]]}}`
	fake.Responses["getFile"] = `{"ok":true,"result":{"file_id":"av-big","file_path":"photos/av.jpg"}}`

	got := c.avatarURL(context.Background(), &user{ID: 5, FirstName: "Alice"})
	if !strings.HasSuffix(got, "/file/bottest-token/photos/av.jpg") {
		t.Errorf("avatar URL = %q", got)
	}
}

func TestAvatarURLFallsBackToGenerated(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUserProfilePhotos"] = `{"ok":true,"result":{"total_count":0,"photos":[]}}`

	got := c.avatarURL(context.Background(), &user{ID: 5, FirstName: "Alice B"})
	if !strings.HasPrefix(got, "https://api.dicebear.com/7.x/initials/png?seed=") {
		t.Errorf("avatar URL = %q", got)
	}
}

func TestDeletedMessageShapeAccepted(t *testing.T) {
	t.Parallel()
	c, fake := newTestClient(t)
	fake.Responses["getUpdates"] = `{"ok":true,"result":[
		{"update_id":50,"deleted_message":{"message_id":9,"chat":{"id":-100123},"date":1}}
	]}`

	events, _, err := c.FetchEvents(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind != platform.EventDelete || events[0].NativeID != "9" {
		t.Errorf("events = %+v", events)
	}
}
