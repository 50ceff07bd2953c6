package session

import (
	"net/http"
	"time"
)

// CookieTransport carries the session id in a plain cookie. The id is an
// unguessable opaque token, so the cookie value itself needs no further
// protection beyond the standard HttpOnly/SameSite attributes.
type CookieTransport struct {
	name   string
	secure bool
}

// NewCookieTransport creates a cookie-based transport.
func NewCookieTransport(name string, secure bool) *CookieTransport {
	if name == "" {
		name = "sid"
	}
	return &CookieTransport{name: name, secure: secure}
}

// GetToken extracts the session id from the cookie.
func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	c, err := r.Cookie(t.name)
	if err != nil || c.Value == "" {
		return "", ErrNotFound
	}
	return c.Value, nil
}

// SetToken stores the session id in the cookie. A non-positive ttl makes it
// a browser-session cookie.
func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	c := &http.Cookie{
		Name:     t.name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   t.secure,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, c)
	return nil
}

// ClearToken expires the cookie immediately.
func (t *CookieTransport) ClearToken(w http.ResponseWriter) error {
	http.SetCookie(w, &http.Cookie{
		Name:     t.name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   t.secure,
		MaxAge:   -1,
	})
	return nil
}
