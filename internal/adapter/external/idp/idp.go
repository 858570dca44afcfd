// Package idp talks to the OAuth2/OIDC identity provider: it builds the authorize
// redirect and runs the authorization_code and refresh_token grants.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contact-manager/internal/platform/httpclient"
	"contact-manager/internal/session"
	"contact-manager/internal/shared"
	"contact-manager/pkg/retry"
)

// DefaultScope asks for a refresh token along with the identity claims.
const DefaultScope = "openid profile email offline_access"

// Config describes the identity provider application.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Audience is the API identifier the access token is issued for.
	Audience string
	Scope    string
}

// Client runs OAuth2 grants against the identity provider.
type Client struct {
	http  *httpclient.Client
	cfg   Config
	retry retry.Config
	now   func() time.Time
}

// New creates a Client. retryCfg governs token endpoint calls that fail before
// a response arrives or with a 5xx.
func New(c *httpclient.Client, cfg Config, retryCfg retry.Config) *Client {
	cfg.IssuerURL = strings.TrimRight(cfg.IssuerURL, "/")
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	return &Client{http: c, cfg: cfg, retry: retryCfg, now: time.Now}
}

// AuthCodeURL is where the browser is sent to sign in.
func (c *Client) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("scope", c.cfg.Scope)
	q.Set("state", state)
	if c.cfg.Audience != "" {
		q.Set("audience", c.cfg.Audience)
	}
	return c.cfg.IssuerURL + "/authorize?" + q.Encode()
}

// LogoutURL ends the provider session and sends the browser to returnTo.
func (c *Client) LogoutURL(returnTo string) string {
	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	if returnTo != "" {
		q.Set("returnTo", returnTo)
	}
	return c.cfg.IssuerURL + "/v2/logout?" + q.Encode()
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (session.Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURL)
	return c.token(ctx, form)
}

// Refresh trades a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.token(ctx, form)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// statusError is a token endpoint 5xx; it is retried.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("idp: status %d: %s", e.status, e.body)
}

func (c *Client) token(ctx context.Context, form url.Values) (session.Tokens, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	if c.cfg.Audience != "" {
		form.Set("audience", c.cfg.Audience)
	}
	encoded := form.Encode()

	var out session.Tokens
	err := retry.DoWithRetryable(ctx, c.retry, func(ctx context.Context) error {
		tokens, err := c.post(ctx, encoded)
		if err != nil {
			return err
		}
		out = tokens
		return nil
	}, isRetryable)
	if err != nil {
		var exceeded *retry.RetriesExceededError
		if errors.As(err, &exceeded) {
			err = exceeded.LastError
		}
		if shared.IsAuth(err) {
			return session.Tokens{}, err
		}
		return session.Tokens{}, shared.Transport(err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, form string) (session.Tokens, error) {
	req, err := http.NewRequest(http.MethodPost, c.cfg.IssuerURL+"/oauth/token", strings.NewReader(form))
	if err != nil {
		return session.Tokens{}, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	resp, err := c.http.Do(cctx, req)
	if err != nil {
		return session.Tokens{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return session.Tokens{}, err
	}

	switch {
	case resp.StatusCode >= 500:
		return session.Tokens{}, &statusError{status: resp.StatusCode, body: string(body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		var e errorResponse
		_ = json.Unmarshal(body, &e)
		msg := e.Description
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return session.Tokens{}, retry.Permanent(shared.Auth("identity provider rejected the grant: "+msg,
			fmt.Errorf("idp: status %d: %s", resp.StatusCode, e.Error)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return session.Tokens{}, retry.Permanent(fmt.Errorf("decode token response: %w", err))
	}
	if tr.AccessToken == "" {
		return session.Tokens{}, retry.Permanent(shared.Auth("identity provider returned no access token", nil))
	}
	tokens := session.Tokens{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	if tr.ExpiresIn > 0 {
		tokens.Expiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	return retry.DefaultRetryable(err)
}

// RedactURL hides query strings of token endpoint calls in logs.
func RedactURL(u *url.URL) string {
	return u.Scheme + "://" + u.Host + u.Path
}
