package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/blackmichael/bsky-autoposter/internal/activitylog"
	"github.com/blackmichael/bsky-autoposter/internal/bluesky"
	"github.com/blackmichael/bsky-autoposter/internal/metrics"
)

// ErrMissingCredentials is returned when no handle or app password is set.
var ErrMissingCredentials = errors.New("bluesky handle and app password are required")

// Publisher is the core domain service. It decides whether a post transition
// should be shared, builds the post record, and submits it to Bluesky.
//
// At most one publish flow runs at a time.
type Publisher struct {
	mu sync.Mutex

	settings  Settings
	client    BlueskyClient
	images    ImageUploader
	statuses  StatusRepository
	formatter *Formatter
	logger    *slog.Logger
	now       func() time.Time
}

// NewPublisher creates a Publisher. images may be nil, in which case posts
// are never given a thumbnail.
func NewPublisher(settings Settings, client BlueskyClient, images ImageUploader, statuses StatusRepository, logger *slog.Logger) *Publisher {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = DefaultMaxAttempts
	}
	if settings.RetryDelay <= 0 {
		settings.RetryDelay = DefaultRetryDelay
	}
	return &Publisher{
		settings:  settings,
		client:    client,
		images:    images,
		statuses:  statuses,
		formatter: NewFormatter(settings, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// HandleTransition is the event handler for post status transitions. It
// shares the post only on its first transition into the published state and
// reports whether a Bluesky post was created. Failures are logged, never
// returned.
func (p *Publisher) HandleTransition(ctx context.Context, post Post) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.logger.With("flow_id", uuid.NewString(), "post_id", post.ID)

	if post.Revision || post.Autosave {
		logger.DebugContext(ctx, "skipping revision or autosave")
		return false
	}

	marker, err := p.statuses.GetPostStatus(ctx, post.ID)
	if err != nil {
		logger.Log(ctx, activitylog.LevelError, "failed to read post status", "error", err)
		return false
	}

	if state := ClassifyTransition(post, marker); state != StatePublished {
		logger.DebugContext(ctx, "skipping transition", "status", post.Status, "previous_status", post.PreviousStatus, "state", state.String())
		return false
	}

	if p.settings.Handle == "" || p.settings.AppPassword == "" {
		logger.DebugContext(ctx, "skipping post, credentials not configured")
		return false
	}

	_, err = p.publish(ctx, logger, post)
	return err == nil
}

// Publish shares post without the transition guards, e.g. on operator
// request. It returns the AT-URI of the created record.
func (p *Publisher) Publish(ctx context.Context, post Post) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := p.logger.With("flow_id", uuid.NewString(), "post_id", post.ID)
	return p.publish(ctx, logger, post)
}

// TestConnection checks that Bluesky accepts the given credentials, falling
// back to the configured ones for empty arguments. The publishing session is
// left as it is.
func (p *Publisher) TestConnection(ctx context.Context, handle, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if handle == "" {
		handle = p.settings.Handle
	}
	if password == "" {
		password = p.settings.AppPassword
	}
	if handle == "" || password == "" {
		return ErrMissingCredentials
	}

	if err := p.client.CheckCredentials(ctx, handle, password); err != nil {
		return fmt.Errorf("test connection: %w", err)
	}
	return nil
}

// publish runs one flow and records its outcome in the post's status marker.
func (p *Publisher) publish(ctx context.Context, logger *slog.Logger, post Post) (string, error) {
	uri, err := p.run(ctx, logger, post)

	outcome := OutcomePublished
	if err != nil {
		outcome = OutcomeFailed
	}
	metrics.PostsTotal.WithLabelValues(string(outcome)).Inc()

	marker := StatusMarker{
		PostID:    post.ID,
		Status:    StatusPublish,
		Outcome:   outcome,
		RecordURI: uri,
		UpdatedAt: p.now(),
	}
	if serr := p.statuses.SetPostStatus(context.WithoutCancel(ctx), marker); serr != nil {
		logger.Log(ctx, activitylog.LevelWarning, "failed to write post status", "error", serr)
	}
	return uri, err
}

func (p *Publisher) run(ctx context.Context, logger *slog.Logger, post Post) (string, error) {
	resolver := NewResolver(post, p.settings)
	text := p.formatter.Format(ctx, resolver)
	preview := resolver.Preview()

	logger.DebugContext(ctx, "posting article", "link", preview.URI)

	var thumb *bluesky.BlobRef
	if preview.ThumbURL != "" && p.images != nil {
		blob, err := p.images.Upload(ctx, preview.ThumbURL)
		if err != nil {
			logger.Log(ctx, activitylog.LevelWarning, "posting without thumbnail", "image", preview.ThumbURL, "error", err)
		} else {
			thumb = blob
			logger.DebugContext(ctx, "uploaded thumbnail", "mime_type", blob.MimeType, "size", blob.Size)
		}
	}

	record := bluesky.NewPostRecord(text, p.now(), languages(p.settings.Language))
	record.Facets = Facets(text, resolver.Hashtags())
	if preview.URI != "" {
		record.Embed = bluesky.NewExternalEmbed(preview.URI, preview.Title, preview.Description, thumb)
	}

	resp, err := p.submit(ctx, logger, record)
	if err != nil {
		logger.Log(ctx, activitylog.LevelError, "failed to post article to Bluesky", "error", err)
		return "", fmt.Errorf("submit post %d: %w", post.ID, err)
	}

	logger.Log(ctx, activitylog.LevelSuccess, "posted article to Bluesky", "uri", resp.URI)
	return resp.URI, nil
}

// submit creates the record, retrying server errors with a fixed delay.
// Every other failure ends the flow at once.
func (p *Publisher) submit(ctx context.Context, logger *slog.Logger, record bluesky.PostRecord) (*bluesky.CreateRecordResponse, error) {
	var (
		resp    *bluesky.CreateRecordResponse
		attempt int
	)

	op := func() error {
		attempt++
		metrics.SubmitAttemptsTotal.Inc()

		r, err := p.client.CreateRecord(ctx, record)
		if err != nil {
			var apiErr *bluesky.APIError
			if errors.As(err, &apiErr) && apiErr.ServerError() {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Log(ctx, activitylog.LevelError, "server error, retrying",
			"attempt", attempt,
			"max_attempts", p.settings.MaxAttempts,
			"retry_in", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.settings.RetryDelay), uint64(p.settings.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// languages converts a locale such as "en_US" into the ISO 639-1 code list of
// a post record.
func languages(locale string) []string {
	locale = strings.TrimSpace(locale)
	if len(locale) < 2 {
		return nil
	}
	return []string{strings.ToLower(locale[:2])}
}
