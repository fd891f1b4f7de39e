package events

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/bsky-autoposter/internal/domain"
)

// Event kinds sent by the blog.
const (
	kindTransition = "transition"
	kindPing       = "ping"
)

// event is the JSON structure of one stream message.
type event struct {
	Kind string `json:"kind"`

	// Seq increases with every event; it is echoed back as the cursor on
	// reconnect so the blog can replay what was missed.
	Seq int64 `json:"seq"`

	Post *domain.Post `json:"post,omitempty"`
}

func parseEvent(data []byte) (*event, error) {
	var e event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if e.Kind == kindTransition && e.Post == nil {
		return nil, fmt.Errorf("transition event %d carries no post", e.Seq)
	}
	return &e, nil
}
