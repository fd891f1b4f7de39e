package domain

import "time"

// Post statuses as reported by the blog.
const (
	StatusPublish = "publish"
	StatusFuture  = "future"
	StatusDraft   = "draft"
	StatusPending = "pending"
	StatusPrivate = "private"
)

// Post is a blog post as delivered by the host with a status transition.
type Post struct {
	// ID is the host's numeric post id.
	ID int64 `json:"id"`

	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`

	// Link is the post's permalink.
	Link string `json:"link"`
	Slug string `json:"slug"`

	// Status is the status the post transitioned into; PreviousStatus is the
	// one it left.
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`

	// Date and Modified are the creation and last-modification times. Both
	// are optional.
	Date     time.Time `json:"date,omitzero"`
	Modified time.Time `json:"modified,omitzero"`

	// Revision and Autosave mark copies of a post that must never be shared.
	Revision bool `json:"revision"`
	Autosave bool `json:"autosave"`

	Tags []Tag `json:"tags"`

	// ImageURL is the featured image, if any.
	ImageURL string `json:"image_url"`

	// Meta carries SEO plugin fields keyed by their meta key.
	Meta map[string]string `json:"meta"`
}

// Tag is a post tag.
type Tag struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PreviewData is the content of the link card attached to a post.
type PreviewData struct {
	URI         string
	Title       string
	Description string
	ThumbURL    string
}

// Outcome records how a publish flow ended.
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
)

// StatusMarker is the per-post record of the last publish flow. Its presence
// with Status == StatusPublish prevents the post from being shared again.
type StatusMarker struct {
	PostID    int64
	Status    string
	Outcome   Outcome
	RecordURI string
	UpdatedAt time.Time
}
