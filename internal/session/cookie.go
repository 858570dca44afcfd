package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// CookieName is the name of the signed cookie that carries the session id.
const CookieName = "contacts_session"

const (
	keyID    = "sid"
	keyState = "oauth_state"
)

// ErrNoSession means the request carries no valid session cookie.
var ErrNoSession = errors.New("session: no session cookie")

// CookieOptions tune the session cookie.
type CookieOptions struct {
	MaxAge   time.Duration
	Secure   bool
	Path     string
	SameSite http.SameSite
}

// Cookies reads and writes the signed session cookie. The cookie holds only the
// session id and the pending login state; tokens stay in the Store.
type Cookies struct {
	store *sessions.CookieStore
}

// NewCookies builds a cookie codec signed with secret.
func NewCookies(secret []byte, opts CookieOptions) *Cookies {
	cs := sessions.NewCookieStore(secret)
	path := opts.Path
	if path == "" {
		path = "/"
	}
	sameSite := opts.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	cs.Options = &sessions.Options{
		Path:     path,
		MaxAge:   int(opts.MaxAge / time.Second),
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: sameSite,
	}
	if opts.MaxAge > 0 {
		cs.MaxAge(int(opts.MaxAge / time.Second))
	}
	return &Cookies{store: cs}
}

func (c *Cookies) get(r *http.Request) *sessions.Session {
	// A cookie that fails verification still yields a usable empty session.
	s, _ := c.store.Get(r, CookieName)
	return s
}

// SessionID returns the id stored in the request's cookie.
func (c *Cookies) SessionID(r *http.Request) (string, error) {
	id, ok := c.get(r).Values[keyID].(string)
	if !ok || id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

// SetSessionID writes id to the cookie and drops any pending login state.
// It returns the encoded cookie value so non-browser clients can store it.
func (c *Cookies) SetSessionID(w http.ResponseWriter, r *http.Request, id string) (string, error) {
	s := c.get(r)
	s.Values[keyID] = id
	delete(s.Values, keyState)
	if err := c.store.Save(r, w, s); err != nil {
		return "", err
	}
	return encodedValue(w), nil
}

// SetState remembers the OAuth2 state for the callback to verify.
func (c *Cookies) SetState(w http.ResponseWriter, r *http.Request, state string) error {
	s := c.get(r)
	s.Values[keyState] = state
	return c.store.Save(r, w, s)
}

// State returns the pending OAuth2 state. SetSessionID removes it.
func (c *Cookies) State(r *http.Request) (string, error) {
	state, _ := c.get(r).Values[keyState].(string)
	if state == "" {
		return "", ErrNoSession
	}
	return state, nil
}

// Clear expires the cookie.
func (c *Cookies) Clear(w http.ResponseWriter, r *http.Request) error {
	s := c.get(r)
	s.Values = map[interface{}]interface{}{}
	s.Options.MaxAge = -1
	return c.store.Save(r, w, s)
}

// encodedValue picks the last session cookie written to w.
func encodedValue(w http.ResponseWriter) string {
	var value string
	for _, raw := range w.Header().Values("Set-Cookie") {
		if ck, err := http.ParseSetCookie(raw); err == nil && ck.Name == CookieName {
			value = ck.Value
		}
	}
	return value
}
