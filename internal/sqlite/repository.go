// Package sqlite persists the Bluesky session and per-post status markers in
// a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/bsky-autoposter/internal/bluesky"
	"github.com/blackmichael/bsky-autoposter/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       BLOB    NOT NULL,
	sealed     INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS post_status (
	post_id    INTEGER PRIMARY KEY,
	status     TEXT    NOT NULL,
	outcome    TEXT    NOT NULL,
	record_uri TEXT    NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cursors (
	service      TEXT    PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);`

// Repository implements bluesky.SessionStore, domain.StatusRepository and
// events.CursorRepository using SQLite.
type Repository struct {
	db     *sql.DB
	secret string
	kdf    kdfParams
}

// Option configures a Repository.
type Option func(*Repository)

// WithSessionSecret seals the stored token pair with a key derived from
// secret. Sessions written without a secret are still readable.
func WithSessionSecret(secret string) Option {
	return func(r *Repository) { r.secret = secret }
}

// NewRepository opens (creating if needed) the database at path, applies the
// schema, and returns a new Repository. The caller should call Close when the
// repository is no longer needed.
func NewRepository(path string, opts ...Option) (*Repository, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	r := &Repository{db: db, kdf: defaultKDFParams()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// LoadSession returns the stored session, or nil if none was saved.
func (r *Repository) LoadSession(ctx context.Context) (*bluesky.Session, error) {
	var (
		data   []byte
		sealed bool
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT data, sealed FROM session WHERE id = 1`,
	).Scan(&data, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if sealed {
		if r.secret == "" {
			return nil, fmt.Errorf("session is sealed and no secret is configured")
		}
		data, err = open(r.secret, data)
		if err != nil {
			return nil, err
		}
	}

	var session bluesky.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// SaveSession replaces the stored session.
func (r *Repository) SaveSession(ctx context.Context, session bluesky.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	sealed := 0
	if r.secret != "" {
		data, err = seal(r.secret, data, r.kdf)
		if err != nil {
			return fmt.Errorf("seal session: %w", err)
		}
		sealed = 1
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO session (id, data, sealed, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, sealed = excluded.sealed, updated_at = excluded.updated_at`,
		data, sealed, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetPostStatus returns the status marker for postID, or nil if the post has
// never been through a publish flow.
func (r *Repository) GetPostStatus(ctx context.Context, postID int64) (*domain.StatusMarker, error) {
	var (
		m       domain.StatusMarker
		outcome string
		millis  int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT post_id, status, outcome, record_uri, updated_at FROM post_status WHERE post_id = ?`, postID,
	).Scan(&m.PostID, &m.Status, &outcome, &m.RecordURI, &millis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query post status %d: %w", postID, err)
	}
	m.Outcome = domain.Outcome(outcome)
	m.UpdatedAt = time.UnixMilli(millis).UTC()
	return &m, nil
}

// SetPostStatus upserts the status marker of a post.
func (r *Repository) SetPostStatus(ctx context.Context, marker domain.StatusMarker) error {
	updatedAt := marker.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO post_status (post_id, status, outcome, record_uri, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (post_id) DO UPDATE SET
			status = excluded.status,
			outcome = excluded.outcome,
			record_uri = excluded.record_uri,
			updated_at = excluded.updated_at`,
		marker.PostID, marker.Status, string(marker.Outcome), marker.RecordURI, updatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set post status %d: %w", marker.PostID, err)
	}
	return nil
}

// GetCursor retrieves the saved event stream cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the event stream cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
		service, cursor, time.Now().UnixMilli(),
	)
	return err
}
