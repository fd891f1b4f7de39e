package domain

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
	"golang.org/x/net/html"
)

// Post text limits of app.bsky.feed.post.
const (
	MaxGraphemes  = 300
	keepGraphemes = MaxGraphemes - len(ellipsis)
	ellipsis      = "..."
)

// charRef matches a character reference closed by a semicolon. Legacy
// references without one, such as "&copy" in "?a=1&copy=2", are left alone.
var charRef = regexp.MustCompile(`&(?:#[0-9]+|#[xX][0-9a-fA-F]+|[A-Za-z][A-Za-z0-9]*);`)

// DecodeEntities decodes the character references of s that end in ";".
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return charRef.ReplaceAllStringFunc(s, html.UnescapeString)
}

// StripMarkup removes HTML tags, drops the content of script and style
// elements, and decodes character references that end in ";".
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.WriteString(DecodeEntities(string(z.Raw())))
			}
		case html.StartTagToken:
			if isRawElement(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawElement(z) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawElement(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

// Truncate normalises text to plain text and cuts it to the post length
// limit: more than MaxGraphemes grapheme clusters become the first 297
// followed by "...".
func Truncate(text string) string {
	text = strings.TrimSpace(StripMarkup(text))
	if uniseg.GraphemeClusterCount(text) <= MaxGraphemes {
		return text
	}

	var (
		b strings.Builder
		n int
	)
	g := uniseg.NewGraphemes(text)
	for n < keepGraphemes && g.Next() {
		b.WriteString(g.Str())
		n++
	}
	b.WriteString(ellipsis)
	return b.String()
}
