package domain

import "time"

// PostState is where a post stands with respect to sharing.
type PostState int

const (
	// StateDraft covers every non-public status.
	StateDraft PostState = iota
	// StateScheduled is a post waiting for its publish date.
	StateScheduled
	// StatePublished is the first transition into the public status; the
	// only state that triggers a publish flow.
	StatePublished
	// StateRepublishedEdit is an update to a post that is already public or
	// that has already been through a publish flow.
	StateRepublishedEdit
)

// editGrace is how far Modified may trail Date on a fresh publication.
const editGrace = 10 * time.Second

func (s PostState) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateScheduled:
		return "scheduled"
	case StatePublished:
		return "published"
	case StateRepublishedEdit:
		return "republished-edit"
	default:
		return "unknown"
	}
}

// ClassifyTransition maps a status transition, together with the stored
// marker of the post (nil when none), to a PostState.
func ClassifyTransition(post Post, marker *StatusMarker) PostState {
	switch post.Status {
	case StatusPublish:
	case StatusFuture:
		return StateScheduled
	default:
		return StateDraft
	}

	if post.PreviousStatus == StatusPublish {
		return StateRepublishedEdit
	}
	if marker != nil && marker.Status == StatusPublish {
		return StateRepublishedEdit
	}
	if !post.Date.IsZero() && !post.Modified.IsZero() && post.Modified.Sub(post.Date) > editGrace {
		return StateRepublishedEdit
	}
	return StatePublished
}
