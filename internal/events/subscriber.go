// Package events consumes post transitions from a WebSocket event stream
// published by the blog.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/bsky-autoposter/internal/domain"
	"github.com/blackmichael/bsky-autoposter/internal/metrics"
)

const (
	cursorServiceName = "blog-events"
	reconnectDelay    = 5 * time.Second
)

// Handler processes one post transition.
type Handler interface {
	HandleTransition(ctx context.Context, post domain.Post) bool
}

// CursorRepository persists the last processed event sequence number.
type CursorRepository interface {
	// GetCursor returns the saved cursor for service, or 0 if none.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor saves the cursor for service.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// Subscriber connects to the event stream and hands transitions to a Handler
// one at a time.
type Subscriber struct {
	url            string
	handler        Handler
	cursors        CursorRepository
	logger         *slog.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
}

// NewSubscriber creates a new event subscriber.
func NewSubscriber(streamURL string, handler Handler, cursors CursorRepository, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:            streamURL,
		handler:        handler,
		cursors:        cursors,
		logger:         logger,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: reconnectDelay,
	}
}

// Start connects to the stream and processes events until the context is
// cancelled. It reconnects after a fixed pause on errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("event stream error, reconnecting", "error", err, "retry_in", s.reconnectDelay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	if cursor > 0 {
		q := u.Query()
		q.Set("cursor", strconv.FormatInt(cursor, 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.cursors.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL, err := s.buildURL(cursor)
	if err != nil {
		return err
	}
	s.logger.Info("connecting to event stream", "url", wsURL)

	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.logger.Info("connected to event stream")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		ev, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		switch ev.Kind {
		case kindTransition:
			metrics.EventsTotal.WithLabelValues("websocket").Inc()
			posted := s.handler.HandleTransition(ctx, *ev.Post)
			s.logger.Debug("handled transition", "seq", ev.Seq, "post_id", ev.Post.ID, "posted", posted)
		case kindPing:
		default:
			s.logger.Debug("ignoring event", "kind", ev.Kind, "seq", ev.Seq)
		}

		if ev.Seq > 0 {
			if err := s.cursors.UpdateCursor(ctx, cursorServiceName, ev.Seq); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			}
		}
	}
}
