package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/blackmichael/bsky-autoposter/internal/activitylog"
	"github.com/blackmichael/bsky-autoposter/internal/metrics"
)

const defaultPDS = "https://bsky.social"

// XRPC methods called by the client.
const (
	nsidCreateSession  = "com.atproto.server.createSession"
	nsidRefreshSession = "com.atproto.server.refreshSession"
	nsidUploadBlob     = "com.atproto.repo.uploadBlob"
	nsidCreateRecord   = "com.atproto.repo.createRecord"
)

// SessionStore persists the session between runs.
type SessionStore interface {
	// LoadSession returns the last saved session, or nil if there is none.
	LoadSession(ctx context.Context) (*Session, error)

	// SaveSession replaces the saved session.
	SaveSession(ctx context.Context, session Session) error
}

// Client is a minimal BlueSky/AT Protocol API client for publishing posts.
// It logs in lazily, refreshes an expired access token once per request and
// keeps the session in a SessionStore.
//
// A Client is not safe for concurrent use.
type Client struct {
	pds        string
	httpClient *http.Client
	store      SessionStore
	logger     *slog.Logger

	handle   string
	password string

	session *Session
	loaded  bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSessionStore persists sessions through store.
func WithSessionStore(store SessionStore) Option {
	return func(c *Client) { c.store = store }
}

// WithCredentials sets the handle and app password used for lazy login.
func WithCredentials(handle, password string) Option {
	return func(c *Client) {
		c.handle = handle
		c.password = password
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new BlueSky API client. If pds is empty, it defaults to
// https://bsky.social.
func NewClient(pds string, opts ...Option) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	c := &Client{
		pds: strings.TrimRight(pds, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DID returns the authenticated account's DID, or "" before a session exists.
func (c *Client) DID() string {
	if c.session == nil {
		return ""
	}
	return c.session.DID
}

// Authenticate creates a session with the PDS and stores it. Use an App
// Password, not your account password. A leading "@" on handle is ignored.
// On failure the stored session is left untouched.
func (c *Client) Authenticate(ctx context.Context, handle, password string) (*Session, error) {
	session, err := c.createSession(ctx, handle, password)
	if err != nil {
		c.logger.Log(ctx, activitylog.LevelError, "authentication failed", "handle", session.Handle, "error", err)
		return nil, err
	}

	c.session = session
	c.loaded = true
	c.persist(ctx)
	c.logger.Log(ctx, activitylog.LevelSuccess, "authenticated with Bluesky", "handle", session.Handle, "did", session.DID)

	out := *session
	return &out, nil
}

// CheckCredentials logs in with handle and password and discards the
// resulting session. The client's own session and the store are not touched.
func (c *Client) CheckCredentials(ctx context.Context, handle, password string) error {
	session, err := c.createSession(ctx, handle, password)
	if err != nil {
		c.logger.Log(ctx, activitylog.LevelWarning, "credential check failed", "handle", session.Handle, "error", err)
		return err
	}
	c.logger.Log(ctx, activitylog.LevelSuccess, "credentials accepted by Bluesky", "handle", session.Handle, "did", session.DID)
	return nil
}

// createSession logs in without keeping the result. The returned session is
// never nil; on failure it carries only the normalised handle.
func (c *Client) createSession(ctx context.Context, handle, password string) (*Session, error) {
	handle = strings.TrimLeft(handle, "@")
	failed := &Session{Handle: handle}

	payload, err := json.Marshal(createSessionRequest{Identifier: handle, Password: password})
	if err != nil {
		return failed, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.send(ctx, nsidCreateSession, "application/json", payload, "")
	if err != nil {
		return failed, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	var session Session
	if err := resp.decode(&session); err != nil {
		return failed, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if session.AccessJwt == "" {
		return failed, fmt.Errorf("%w: invalid response from Bluesky API", ErrAuthentication)
	}
	if session.Handle == "" {
		session.Handle = handle
	}
	return &session, nil
}

// Refresh exchanges the refresh token for a new token pair. On failure the
// current session is left untouched and the caller should authenticate again.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	if err := c.loadSession(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefresh, err)
	}
	if c.session == nil || c.session.RefreshJwt == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrRefresh)
	}

	resp, err := c.send(ctx, nsidRefreshSession, "", nil, c.session.RefreshJwt)
	if err != nil {
		c.logger.Log(ctx, activitylog.LevelError, "token refresh failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRefresh, err)
	}

	var refreshed Session
	if err := resp.decode(&refreshed); err != nil {
		c.logger.Log(ctx, activitylog.LevelError, "token refresh failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRefresh, err)
	}
	if refreshed.AccessJwt == "" {
		c.logger.Log(ctx, activitylog.LevelError, "token refresh failed: invalid response from Bluesky API")
		return nil, fmt.Errorf("%w: invalid response from Bluesky API", ErrRefresh)
	}

	next := *c.session
	next.AccessJwt = refreshed.AccessJwt
	next.RefreshJwt = refreshed.RefreshJwt
	if refreshed.Handle != "" {
		next.Handle = refreshed.Handle
	}
	if refreshed.DID != "" {
		next.DID = refreshed.DID
	}
	c.session = &next
	c.persist(ctx)
	c.logger.Debug("refreshed authentication token")

	out := next
	return &out, nil
}

// UploadBlob uploads raw image bytes as a blob and returns a reference.
// The blob will be deleted if not referenced in a record within a time window.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType string) (*BlobRef, error) {
	var result uploadBlobResponse
	if err := c.do(ctx, nsidUploadBlob, mimeType, data, &result); err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if result.Blob.Ref.Link == "" {
		return nil, fmt.Errorf("upload blob: response carries no blob reference")
	}
	return &result.Blob, nil
}

// CreateRecord writes a post into the authenticated account's repo.
func (c *Client) CreateRecord(ctx context.Context, record PostRecord) (*CreateRecordResponse, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	payload, err := json.Marshal(createRecordRequest{
		Repo:       c.session.DID,
		Collection: PostCollection,
		Record:     record,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var result CreateRecordResponse
	if err := c.do(ctx, nsidCreateRecord, "application/json", payload, &result); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	if result.URI == "" {
		return nil, fmt.Errorf("create record: response carries no uri")
	}
	return &result, nil
}

// do sends an authenticated request. An ExpiredToken answer triggers exactly
// one refresh (or, failing that, one fresh login) and exactly one retry.
func (c *Client) do(ctx context.Context, nsid, contentType string, body []byte, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	resp, err := c.send(ctx, nsid, contentType, body, c.session.AccessJwt)
	if err != nil {
		return err
	}

	if resp.errorCode() == errorCodeExpiredToken {
		c.logger.Debug("access token expired, refreshing", "nsid", nsid)
		if _, err := c.Refresh(ctx); err != nil {
			c.logger.Log(ctx, activitylog.LevelWarning, "refresh failed, logging in again", "error", err)
			if _, authErr := c.Authenticate(ctx, c.handle, c.password); authErr != nil {
				return errors.Join(err, authErr)
			}
		}

		resp, err = c.send(ctx, nsid, contentType, body, c.session.AccessJwt)
		if err != nil {
			return err
		}
	}

	return resp.decode(out)
}

// ensureSession loads the stored session and, when there is none, logs in
// with the configured credentials.
func (c *Client) ensureSession(ctx context.Context) error {
	if err := c.loadSession(ctx); err != nil {
		c.logger.Log(ctx, activitylog.LevelWarning, "stored session unusable, logging in again", "error", err)
	}
	if c.session != nil && c.session.AccessJwt != "" {
		return nil
	}
	if c.handle == "" || c.password == "" {
		return ErrNotAuthenticated
	}
	_, err := c.Authenticate(ctx, c.handle, c.password)
	return err
}

func (c *Client) loadSession(ctx context.Context) error {
	if c.loaded || c.store == nil {
		return nil
	}
	c.loaded = true

	session, err := c.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	c.session = session
	return nil
}

func (c *Client) persist(ctx context.Context) {
	if c.store == nil || c.session == nil {
		return
	}
	if err := c.store.SaveSession(ctx, *c.session); err != nil {
		c.logger.Log(ctx, activitylog.LevelWarning, "failed to save session", "error", err)
	}
}

type response struct {
	status int
	body   []byte
}

func (c *Client) send(ctx context.Context, nsid, contentType string, body []byte, bearer string) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+"/xrpc/"+nsid, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveXRPC(nsid, 0, start)
		return nil, &TransportError{NSID: nsid, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	metrics.ObserveXRPC(nsid, resp.StatusCode, start)
	if err != nil {
		return nil, &TransportError{NSID: nsid, Err: fmt.Errorf("read response: %w", err)}
	}

	return &response{status: resp.StatusCode, body: respBody}, nil
}

func (r *response) errorCode() string {
	var e errorResponse
	if err := json.Unmarshal(r.body, &e); err != nil {
		return ""
	}
	return e.Error
}

func (r *response) decode(out any) error {
	if r.status < 200 || r.status >= 300 {
		apiErr := &APIError{StatusCode: r.status, Body: r.body}
		var e errorResponse
		if json.Unmarshal(r.body, &e) == nil {
			apiErr.Code = e.Error
			apiErr.Message = e.Message
		}
		return apiErr
	}

	if out != nil && len(r.body) > 0 {
		if err := json.Unmarshal(r.body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
