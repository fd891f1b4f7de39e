package domain

import (
	"regexp"
	"strings"
)

var (
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9-]`)
	tickerPattern = regexp.MustCompile(`^[A-Z0-9.]+$`)
)

// Hashtags turns post tags into a space-separated "#tag" string. Each slug
// (the name when the slug is empty) is lower-cased and stripped of anything
// outside [a-z0-9-]; tags not starting with a letter or digit are dropped.
func Hashtags(tags []Tag) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		slug := t.Slug
		if slug == "" {
			slug = t.Name
		}
		slug = nonSlugChars.ReplaceAllString(strings.ToLower(slug), "")
		if slug == "" || !isAlnum(slug[0]) {
			continue
		}
		out = append(out, "#"+slug)
	}
	return strings.Join(out, " ")
}

// Cashtags turns a stock-ticker list such as "NASDAQ:AAPL, NYSE:IBM" into
// "$AAPL $IBM". Entries without an exchange prefix or with a ticker outside
// [A-Z0-9.] are skipped.
func Cashtags(tickers string) string {
	var out []string
	for _, part := range strings.Split(tickers, ",") {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) < 2 {
			continue
		}
		ticker := strings.TrimSpace(fields[1])
		if ticker == "" || !tickerPattern.MatchString(ticker) {
			continue
		}
		out = append(out, "$"+ticker)
	}
	return strings.Join(out, " ")
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
