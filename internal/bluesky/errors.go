package bluesky

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthentication is returned when createSession rejects the credentials
	// or answers with something that is not a session.
	ErrAuthentication = errors.New("authentication failed")

	// ErrRefresh is returned when refreshSession cannot mint a new token pair.
	ErrRefresh = errors.New("session refresh failed")

	// ErrNotAuthenticated is returned when a request needs a session and no
	// credentials are configured to create one.
	ErrNotAuthenticated = errors.New("not authenticated: no session and no credentials configured")
)

// errorCodeExpiredToken is the XRPC error code the PDS uses for an expired
// access token. It arrives in the JSON body, usually with HTTP 400.
const errorCodeExpiredToken = "ExpiredToken"

// APIError is a non-2xx XRPC response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("API error (status %d): %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Code)
	case e.Message != "":
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, string(e.Body))
	}
}

// ServerError reports whether the PDS failed with a 5xx status. These are the
// only failures worth retrying.
func (e *APIError) ServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError && e.StatusCode < 600
}

// TransportError is a network-level failure: the request never produced an
// HTTP response.
type TransportError struct {
	NSID string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send %s: %v", e.NSID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
