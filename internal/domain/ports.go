package domain

import (
	"context"

	"github.com/blackmichael/bsky-autoposter/internal/bluesky"
)

// StatusRepository defines persistence operations for per-post status markers.
type StatusRepository interface {
	// GetPostStatus returns the marker for postID, or nil if none exists.
	GetPostStatus(ctx context.Context, postID int64) (*StatusMarker, error)

	// SetPostStatus upserts the marker of a post.
	SetPostStatus(ctx context.Context, marker StatusMarker) error
}

// BlueskyClient is the subset of the AT Protocol client the publisher needs.
type BlueskyClient interface {
	// CheckCredentials verifies handle and password without replacing the
	// session posts are published with.
	CheckCredentials(ctx context.Context, handle, password string) error

	// CreateRecord writes a post record into the account's repo.
	CreateRecord(ctx context.Context, record bluesky.PostRecord) (*bluesky.CreateRecordResponse, error)
}

// ImageUploader turns a remote image into an uploaded blob.
type ImageUploader interface {
	Upload(ctx context.Context, imageURL string) (*bluesky.BlobRef, error)
}
