// Copyright 2024-2026 Aiku AI

package format

import "testing"

func TestMarkdownToHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"bold", "**bold** text", "<b>bold</b> text"},
		{"italic", "some _italic_ text", "some <i>italic</i> text"},
		{"strike", "~~gone~~", "<s>gone</s>"},
		{"inline code", "run `go vet` first", "run <code>go vet</code> first"},
		{"escapes html", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"link", "[docs](https://example.com/a)", `<a href="https://example.com/a">docs</a>`},
		{"unsafe link stripped", "[x](javascript:alert)", "x"},
		{"heading degrades to bold", "# Title", "<b>Title</b>"},
		{"list degrades to bullets", "- one\n- two", "• one\n• two"},
		{
			"code block",
			"before\n```go\nif a < b {\n}\n```\nafter",
			"before\n<pre>if a &lt; b {\n}</pre>\nafter",
		},
		{"bold inside code untouched", "`**not bold**`", "<code>**not bold**</code>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownToHTML(tt.in); got != tt.want {
				t.Errorf("MarkdownToHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"bold", "<b>bold</b> text", "**bold** text"},
		{"strong", "<strong>bold</strong>", "**bold**"},
		{"italic", "<i>soft</i> and <em>softer</em>", "_soft_ and _softer_"},
		{"strike", "<s>gone</s>", "~~gone~~"},
		{"code", "run <code>go vet</code>", "run `go vet`"},
		{"pre", "<pre>x := 1\ny := 2</pre>", "```\nx := 1\ny := 2\n```"},
		{"link", `<a href="https://example.com/a">docs</a>`, "[docs](https://example.com/a)"},
		{"br", "one<br>two", "one\ntwo"},
		{"unknown tag stripped", "<tg-spoiler>boo</tg-spoiler>", "boo"},
		{"entities", "a &lt; b &amp; c", "a < b & c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTMLToMarkdown(tt.in); got != tt.want {
				t.Errorf("HTMLToMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAuthorPrefix(t *testing.T) {
	t.Parallel()
	if got := AuthorPrefixMarkdown("alice", "hi"); got != "**alice**: hi" {
		t.Errorf("AuthorPrefixMarkdown = %q", got)
	}
	if got := AuthorPrefixMarkdown("", "hi"); got != "hi" {
		t.Errorf("AuthorPrefixMarkdown without author = %q", got)
	}
	if got := AuthorPrefixMarkdown("alice", ""); got != "**alice**" {
		t.Errorf("AuthorPrefixMarkdown without text = %q", got)
	}
	if got := AuthorPrefixHTML("a<b>c", "hi"); got != "<b>a&lt;b&gt;c</b>: hi" {
		t.Errorf("AuthorPrefixHTML = %q", got)
	}
}

func TestReplyFallback(t *testing.T) {
	t.Parallel()
	if got := ReplyFallbackMarkdown("bob"); got != "> \U0001f4ac Replying to **bob**\n\n" {
		t.Errorf("ReplyFallbackMarkdown = %q", got)
	}
	if got := ReplyFallbackHTML("<bob>"); got != "\U0001f4ac Replying to <b>&lt;bob&gt;</b>\n" {
		t.Errorf("ReplyFallbackHTML = %q", got)
	}
}

func TestAttachmentPlaceholder(t *testing.T) {
	t.Parallel()
	if got := AttachmentPlaceholder("movie.mp4", 52428800); got != "\U0001f4ce movie.mp4 (50.0 MiB, too large to transfer)" {
		t.Errorf("AttachmentPlaceholder = %q", got)
	}
	if got := AttachmentPlaceholder("", 0); got != "\U0001f4ce attachment (could not be transferred)" {
		t.Errorf("AttachmentPlaceholder empty = %q", got)
	}
}
