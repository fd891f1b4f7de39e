package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/blackmichael/bsky-autoposter/internal/bluesky"
)

// Facets returns one tag facet per "#tag" or "$TICKER" token of hashtags
// found in text. The first case-insensitive occurrence of the token that is
// not the prefix of a longer tag is used; offsets are UTF-8 byte offsets into
// text and the facet's tag is the lower-cased body.
func Facets(text, hashtags string) []bluesky.Facet {
	var (
		facets []bluesky.Facet
		seen   = make(map[string]bool)
	)
	for _, tok := range strings.Fields(hashtags) {
		if !isTagToken(tok) {
			continue
		}
		key := strings.ToLower(tok)
		if seen[key] {
			continue
		}
		seen[key] = true

		start, ok := findTag(text, tok)
		if !ok {
			continue
		}
		facets = append(facets, bluesky.NewTagFacet(start, start+len(tok), key[1:]))
	}
	return facets
}

func findTag(text, tok string) (int, bool) {
	for from := 0; from+len(tok) <= len(text); {
		i := indexFold(text[from:], tok)
		if i < 0 {
			return 0, false
		}
		start := from + i
		if tagEndsAt(text, start+len(tok)) {
			return start, true
		}
		from = start + 1
	}
	return 0, false
}

// tagEndsAt reports whether a tag token may end at text[end].
func tagEndsAt(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	r, size := utf8.DecodeRuneInString(text[end:])
	switch {
	case isWordRune(r) || r == '-':
		return false
	case r == '.':
		next, _ := utf8.DecodeRuneInString(text[end+size:])
		return !isWordRune(next)
	}
	return true
}
