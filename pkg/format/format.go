// Copyright 2024-2026 Aiku AI

// Package format converts message text between Mattermost markdown and
// Telegram's restricted HTML, and renders the author/reply annotations
// used for degraded deliveries.
package format

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe     = regexp.MustCompile(`(^|[^*_])_([^_]+)_($|[^*_])`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	codeBlockRe  = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	mdLinkRe     = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headingRe    = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	ulItemRe     = regexp.MustCompile(`(?m)^[-*]\s+(.+)$`)

	htmlBoldRe   = regexp.MustCompile(`(?s)<(?:b|strong)>(.*?)</(?:b|strong)>`)
	htmlItalicRe = regexp.MustCompile(`(?s)<(?:i|em)>(.*?)</(?:i|em)>`)
	htmlStrikeRe = regexp.MustCompile(`(?s)<(?:s|del|strike)>(.*?)</(?:s|del|strike)>`)
	htmlPreRe    = regexp.MustCompile(`(?s)<pre>(?:<code[^>]*>)?(.*?)(?:</code>)?</pre>`)
	htmlCodeRe   = regexp.MustCompile(`(?s)<code>(.*?)</code>`)
	htmlLinkRe   = regexp.MustCompile(`(?s)<a href="([^"]+)"[^>]*>(.*?)</a>`)
	htmlBrRe     = regexp.MustCompile(`<br\s*/?>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

// codeBlock holds an extracted fenced block while inline rules run.
type codeBlock struct {
	content string
}

// MarkdownToHTML converts Mattermost markdown to the HTML subset Telegram
// accepts (b, i, s, code, pre, a). Structural markdown Telegram cannot
// express degrades: headings become bold lines, list markers become
// bullets.
func MarkdownToHTML(text string) string {
	if text == "" {
		return ""
	}

	// Extract fenced code blocks first so inline rules leave them alone.
	var blocks []codeBlock
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		content := ""
		if len(parts) >= 3 {
			content = parts[2]
		}
		idx := len(blocks)
		blocks = append(blocks, codeBlock{content: content})
		return "\x00CODEBLOCK" + strconv.Itoa(idx) + "\x00"
	})

	processed = html.EscapeString(processed)

	// Inline code spans get the same placeholder treatment so the
	// emphasis rules cannot rewrite their contents.
	var spans []string
	processed = inlineCodeRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := inlineCodeRe.FindStringSubmatch(match)
		idx := len(spans)
		spans = append(spans, parts[1])
		return "\x00CODESPAN" + strconv.Itoa(idx) + "\x00"
	})

	processed = boldRe.ReplaceAllString(processed, "<b>$1</b>")
	processed = italicRe.ReplaceAllString(processed, "$1<i>$2</i>$3")
	processed = strikeRe.ReplaceAllString(processed, "<s>$1</s>")

	processed = mdLinkRe.ReplaceAllStringFunc(processed, func(match string) string {
		parts := mdLinkRe.FindStringSubmatch(match)
		if len(parts) < 3 {
			return match
		}
		label, href := parts[1], parts[2]
		lower := strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			return `<a href="` + href + `">` + label + `</a>`
		}
		return label
	})

	processed = headingRe.ReplaceAllString(processed, "<b>$2</b>")
	processed = ulItemRe.ReplaceAllString(processed, "• $1")

	for i, span := range spans {
		placeholder := "\x00CODESPAN" + strconv.Itoa(i) + "\x00"
		processed = strings.Replace(processed, placeholder, "<code>"+span+"</code>", 1)
	}
	for i, cb := range blocks {
		placeholder := "\x00CODEBLOCK" + strconv.Itoa(i) + "\x00"
		replacement := "<pre>" + html.EscapeString(strings.TrimRight(cb.content, "\n")) + "</pre>"
		processed = strings.Replace(processed, placeholder, replacement, 1)
	}

	return processed
}

// HTMLToMarkdown converts Telegram HTML to Mattermost markdown. Unknown
// tags are stripped, entities unescaped.
func HTMLToMarkdown(text string) string {
	if text == "" {
		return ""
	}

	text = htmlPreRe.ReplaceAllString(text, "```\n$1\n```")
	text = htmlCodeRe.ReplaceAllString(text, "`$1`")
	text = htmlBoldRe.ReplaceAllString(text, "**$1**")
	text = htmlItalicRe.ReplaceAllString(text, "_${1}_")
	text = htmlStrikeRe.ReplaceAllString(text, "~~$1~~")
	text = htmlLinkRe.ReplaceAllString(text, "[$2]($1)")
	text = htmlBrRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")

	return strings.TrimSpace(html.UnescapeString(text))
}

// AuthorPrefixMarkdown renders an author identity prefix for platforms
// whose native sender is the shared bridge account.
func AuthorPrefixMarkdown(author, text string) string {
	if author == "" {
		return text
	}
	if text == "" {
		return "**" + author + "**"
	}
	return "**" + author + "**: " + text
}

// AuthorPrefixHTML is the Telegram-HTML counterpart of AuthorPrefixMarkdown.
func AuthorPrefixHTML(author, text string) string {
	if author == "" {
		return text
	}
	escaped := html.EscapeString(author)
	if text == "" {
		return "<b>" + escaped + "</b>"
	}
	return "<b>" + escaped + "</b>: " + text
}

// ReplyFallbackMarkdown is the substitute annotation used when a reply's
// target has no destination mapping: a quoted line naming the original
// author instead of a native reply link.
func ReplyFallbackMarkdown(author string) string {
	if author == "" {
		return "> \U0001f4ac Replying to an earlier message\n\n"
	}
	return "> \U0001f4ac Replying to **" + author + "**\n\n"
}

// ReplyFallbackHTML is the Telegram-HTML counterpart of ReplyFallbackMarkdown.
func ReplyFallbackHTML(author string) string {
	if author == "" {
		return "\U0001f4ac Replying to an earlier message\n"
	}
	return "\U0001f4ac Replying to <b>" + html.EscapeString(author) + "</b>\n"
}

// AttachmentPlaceholder names an attachment that could not be transferred
// so readers still see that something was shared.
func AttachmentPlaceholder(fileName string, sizeBytes int64) string {
	name := fileName
	if name == "" {
		name = "attachment"
	}
	if sizeBytes > 0 {
		return "\U0001f4ce " + name + " (" + humanSize(sizeBytes) + ", too large to transfer)"
	}
	return "\U0001f4ce " + name + " (could not be transferred)"
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	value := float64(n) / float64(div)
	return strconv.FormatFloat(value, 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
