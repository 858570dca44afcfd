// Package client calls the contacts proxy and turns every answer into a value
// or one of the shared error kinds.
package client

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

	"contact-manager/internal/contact"
	"contact-manager/internal/platform/httpclient"
	"contact-manager/internal/session"
	"contact-manager/internal/shared"
)

const maxResponseBody = 10 << 20

// ErrResponseTooLarge is the cause of the TransportError returned for proxy
// answers over the size limit.
var ErrResponseTooLarge = errors.New("proxy response too large")

// Client talks to the proxy on behalf of one signed-in session.
type Client struct {
	http    *httpclient.Client
	baseURL string
	session string
	log     *slog.Logger
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New builds a Client for the proxy at baseURL. sessionCookie is the value the
// proxy returned from /auth/callback; it may be empty, in which case calls fail
// with an auth error from the proxy.
func New(hc *httpclient.Client, baseURL, sessionCookie string, opts ...Option) *Client {
	c := &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		session: sessionCookie,
		log:     slog.Default(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginURL is the page that starts sign-in in a browser.
func (c *Client) LoginURL() string { return c.baseURL + "/auth/login" }

// FetchAllContacts reads the whole contact list.
func (c *Client) FetchAllContacts(ctx context.Context) ([]contact.Contact, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/contacts", nil)
	if err != nil {
		return nil, err
	}
	var out []contact.Contact
	if err := json.Unmarshal(body, &out); err != nil {
		// A body that is not a contact list is no usable answer.
		return nil, shared.Classify(fmt.Errorf("decode contacts: %w", err))
	}
	if out == nil {
		out = []contact.Contact{}
	}
	return out, nil
}

// CreateContact validates ct locally and sends it.
func (c *Client) CreateContact(ctx context.Context, ct contact.Contact) error {
	if err := contact.Validate(ct); err != nil {
		return err
	}
	payload, err := json.Marshal(ct)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/api/contacts", payload)
	return err
}

// CreateUser registers username with the resource server.
func (c *Client) CreateUser(ctx context.Context, username string) error {
	u := contact.NewUser{Username: username}
	if err := contact.ValidateUser(u); err != nil {
		return err
	}
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/api/users", payload)
	return err
}

// Logout ends the session on the proxy.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain")
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: c.session})
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.http.Do(cctx, req)
	if err != nil {
		if shared.IsCanceled(err) && ctx.Err() != nil {
			return nil, err
		}
		return nil, shared.Classify(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, shared.Classify(err)
	}
	if len(body) > maxResponseBody {
		return nil, shared.Transport(ErrResponseTooLarge)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	err = classify(resp.StatusCode, body)
	c.log.Debug("proxy call failed", "method", method, "path", path, "status", resp.StatusCode, "kind", shared.KindOf(err).String())
	return nil, err
}

// classify reads a non-2xx proxy answer back into an error kind.
func classify(status int, body []byte) error {
	text := string(body)
	switch {
	case status == http.StatusUnauthorized:
		return shared.Auth(strings.TrimSpace(text), nil)
	case status == http.StatusBadGateway && strings.TrimSpace(text) == shared.FetchFailedText:
		return shared.Transport(nil)
	case status == http.StatusUnprocessableEntity:
		var v struct {
			Violations []shared.FieldViolation `json:"violations"`
		}
		if json.Unmarshal(body, &v) == nil && len(v.Violations) > 0 {
			return &shared.ValidationError{Violations: v.Violations}
		}
	}
	return shared.Upstream(status, text)
}
