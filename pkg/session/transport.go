package session

import (
	"net/http"
	"time"
)

// Transport defines how the opaque session id travels between client and
// server.
type Transport interface {
	// GetToken extracts the session id from the request.
	GetToken(r *http.Request) (string, error)

	// SetToken sends the session id in the response. A non-positive ttl
	// yields a browser-session cookie (or equivalent).
	SetToken(w http.ResponseWriter, token string, ttl time.Duration) error

	// ClearToken removes the session id from the response.
	ClearToken(w http.ResponseWriter) error
}
