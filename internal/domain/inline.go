package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	inlineHashtagBody = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	inlineCashtagBody = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
)

// InlineHashtags moves trailing hashtags and cashtags into the text. For each
// tag in the run of "#"/"$" tokens at the end of message, the first
// case-insensitive whole-word occurrence of its body in the text before the
// run is prefixed with the sigil, keeping the casing found in the text, and
// the tag is dropped from the run. Tags without an occurrence, or whose body
// is not a plain word, stay at the end.
//
// Occurrences already carrying a sigil, or inside a URL, are never
// candidates, so applying InlineHashtags to its own output changes nothing.
func InlineHashtags(message string) string {
	text, trailing := splitTrailingTags(message)
	if len(trailing) == 0 {
		return message
	}

	var (
		kept    []string
		changed bool
	)
	for _, tag := range trailing {
		sigil, body := tag[:1], tag[1:]
		if !inlineBody(sigil, body) {
			kept = append(kept, tag)
			continue
		}
		pos, ok := findWord(text, body)
		if !ok {
			kept = append(kept, tag)
			continue
		}
		text = text[:pos] + sigil + text[pos:]
		changed = true
	}
	if !changed {
		return message
	}

	switch {
	case len(kept) == 0:
		return text
	case text == "":
		return strings.Join(kept, " ")
	default:
		return text + " " + strings.Join(kept, " ")
	}
}

func inlineBody(sigil, body string) bool {
	if sigil == "$" {
		return inlineCashtagBody.MatchString(body)
	}
	return inlineHashtagBody.MatchString(body)
}

// splitTrailingTags splits s into the text before its trailing run of tag
// tokens, with trailing whitespace removed, and the tokens in order.
func splitTrailingTags(s string) (string, []string) {
	rest := strings.TrimRightFunc(s, unicode.IsSpace)
	var tags []string
	for rest != "" {
		tokStart := 0
		if i := strings.LastIndexFunc(rest, unicode.IsSpace); i >= 0 {
			_, size := utf8.DecodeRuneInString(rest[i:])
			tokStart = i + size
		}
		tok := rest[tokStart:]
		if !isTagToken(tok) {
			break
		}
		tags = append(tags, tok)
		rest = strings.TrimRightFunc(rest[:tokStart], unicode.IsSpace)
	}

	for i, j := 0, len(tags)-1; i < j; i, j = i+1, j-1 {
		tags[i], tags[j] = tags[j], tags[i]
	}
	return rest, tags
}

func isTagToken(tok string) bool {
	return len(tok) > 1 && (tok[0] == '#' || tok[0] == '$')
}

// findWord returns the byte offset of the first case-insensitive occurrence
// of the ASCII word in text that stands alone, carries no sigil and is not
// part of a URL.
func findWord(text, word string) (int, bool) {
	for from := 0; from+len(word) <= len(text); {
		i := indexFold(text[from:], word)
		if i < 0 {
			return 0, false
		}
		start := from + i
		end := start + len(word)
		if standsAlone(text, start, end) && !insideURL(text, start) {
			return start, true
		}
		from = start + 1
	}
	return 0, false
}

func standsAlone(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) || r == '#' || r == '$' {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// insideURL reports whether the whitespace-delimited token holding text[pos]
// looks like a URL.
func insideURL(text string, pos int) bool {
	tokStart := 0
	if i := strings.LastIndexFunc(text[:pos], unicode.IsSpace); i >= 0 {
		_, size := utf8.DecodeRuneInString(text[i:])
		tokStart = i + size
	}
	tokEnd := len(text)
	if i := strings.IndexFunc(text[pos:], unicode.IsSpace); i >= 0 {
		tokEnd = pos + i
	}
	tok := text[tokStart:tokEnd]
	return strings.Contains(tok, "://") || strings.HasPrefix(strings.ToLower(tok), "www.")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// indexFold is strings.Index with ASCII case folding. sub must be ASCII, which
// keeps the returned offset a valid byte offset into s.
func indexFold(s, sub string) int {
	n := len(sub)
	for i := 0; i+n <= len(s); i++ {
		if asciiEqualFold(s[i:i+n], sub) {
			return i
		}
	}
	return -1
}

func asciiEqualFold(a, b string) bool {
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
