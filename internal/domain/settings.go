package domain

import "time"

// Defaults applied when a Settings field is left empty.
const (
	DefaultPostTemplate = "{title} - {link}"
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 30 * time.Second
)

// UTM holds the link-tracking parameters. Values may contain {id} and {slug}.
type UTM struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// Settings is the publisher's read-only view of the configuration.
type Settings struct {
	Handle      string
	AppPassword string

	PostTemplate string
	FallbackText string

	InlineHashtags bool
	UseSEOMetadata bool

	// BaseURL, when set, replaces the scheme and host of every permalink.
	BaseURL string

	LinkTracking bool
	UTM          UTM

	// Language is the locale of the blog, e.g. "en_US".
	Language string

	MaxAttempts int
	RetryDelay  time.Duration
}
