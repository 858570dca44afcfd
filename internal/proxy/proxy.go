// Package proxy forwards contact calls to the resource server on behalf of the
// signed-in user. Every outcome leaves the package as a value or one of the
// shared error kinds; raw transport errors never do.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"contact-manager/internal/platform/httpclient"
	"contact-manager/internal/platform/metrics"
	"contact-manager/internal/shared"
	"contact-manager/internal/token"
)

const (
	contactsPath = "/api/contacts"
	usersPath    = "/api/users"

	opListContacts  = "list_contacts"
	opCreateContact = "create_contact"
	opCreateUser    = "create_user"

	maxBodySize = 10 << 20
)

// ErrBodyTooLarge reports a resource server answer over the size limit. It is
// returned as a TransportError: no usable response was obtained.
var ErrBodyTooLarge = errors.New("resource server response too large")

// Proxy attaches the caller's bearer token to resource server requests.
type Proxy struct {
	http    *httpclient.Client
	baseURL string
	tokens  token.Acquirer
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	log     *slog.Logger
	timeout time.Duration
}

// Option configures a Proxy.
type Option func(*Proxy)

func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMetrics records upstream outcomes and breaker state on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// WithBreaker replaces the default breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(p *Proxy) { p.breaker = newBreaker(cfg, p.onBreakerChange) }
}

// WithTimeout bounds one upstream call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(p *Proxy) { p.timeout = d }
}

// New builds a Proxy for the resource server at baseURL.
func New(c *httpclient.Client, baseURL string, tokens token.Acquirer, opts ...Option) *Proxy {
	p := &Proxy{
		http:    c,
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		log:     slog.Default(),
		timeout: 20 * time.Second,
	}
	p.breaker = newBreaker(DefaultBreakerConfig(), p.onBreakerChange)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ListContacts returns the resource server's contact list body unchanged.
func (p *Proxy) ListContacts(ctx context.Context) ([]byte, error) {
	resp, err := p.forward(ctx, opListContacts, http.MethodGet, contactsPath, nil)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// CreateContact forwards a JSON contact and returns the upstream status.
func (p *Proxy) CreateContact(ctx context.Context, body []byte) (int, error) {
	resp, err := p.forward(ctx, opCreateContact, http.MethodPost, contactsPath, body)
	if err != nil {
		return 0, err
	}
	return resp.status, nil
}

// CreateUser forwards a JSON {username} body and returns the upstream status.
func (p *Proxy) CreateUser(ctx context.Context, body []byte) (int, error) {
	resp, err := p.forward(ctx, opCreateUser, http.MethodPost, usersPath, body)
	if err != nil {
		return 0, err
	}
	return resp.status, nil
}

type upstreamResponse struct {
	status int
	body   []byte
}

func (p *Proxy) forward(ctx context.Context, op, method, path string, body []byte) (upstreamResponse, error) {
	tok, err := p.tokens.Acquire(ctx)
	if err == nil && tok == "" {
		err = shared.Auth("empty access token", nil)
	}
	if err != nil {
		p.observe(op, "auth_failure", 0)
		if !shared.IsAuth(err) {
			err = shared.Auth("could not obtain access token", err)
		}
		return upstreamResponse{}, err
	}

	if err := ctx.Err(); err != nil {
		p.observe(op, "canceled", 0)
		return upstreamResponse{}, err
	}

	start := time.Now()
	res, err := p.breaker.Execute(func() (interface{}, error) {
		resp, err := p.send(ctx, method, path, string(tok), body)
		if err != nil && ctx.Err() != nil {
			return nil, &callerGoneError{err: ctx.Err()}
		}
		return resp, err
	})
	dur := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			p.log.Debug("caller went away", "operation", op)
			p.observe(op, "canceled", dur)
			return upstreamResponse{}, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.log.Warn("resource server breaker rejected call", "operation", op, "state", p.breaker.State().String())
		} else {
			p.log.Error("resource server unreachable", "operation", op, "timeout", shared.IsTimeout(err), "error", err)
		}
		p.observe(op, "transport_failure", dur)
		return upstreamResponse{}, shared.Transport(err)
	}

	resp := res.(upstreamResponse)
	if resp.status < 200 || resp.status >= 300 {
		p.log.Info("resource server returned error", "operation", op, "status", resp.status)
		p.observe(op, "upstream_error", dur)
		return upstreamResponse{}, shared.Upstream(resp.status, string(resp.body))
	}
	p.observe(op, "ok", dur)
	return resp, nil
}

func (p *Proxy) send(ctx context.Context, method, path, tok string, body []byte) (upstreamResponse, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, p.baseURL+path, rd)
	if err != nil {
		return upstreamResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Accept", "*/*")
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.http.Do(cctx, req)
	if err != nil {
		return upstreamResponse{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return upstreamResponse{}, err
	}
	if len(data) > maxBodySize {
		return upstreamResponse{}, ErrBodyTooLarge
	}
	return upstreamResponse{status: resp.StatusCode, body: data}, nil
}

func (p *Proxy) observe(op, outcome string, dur time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.UpstreamRequestsTotal.WithLabelValues(op, outcome).Inc()
	if dur > 0 {
		p.metrics.UpstreamDuration.WithLabelValues(op).Observe(dur.Seconds())
	}
}

func (p *Proxy) onBreakerChange(from, to gobreaker.State) {
	p.log.Warn("resource server breaker state changed", "from", from.String(), "to", to.String())
	if p.metrics == nil {
		return
	}
	p.metrics.CircuitBreakerState.Set(stateValue(to))
	if to == gobreaker.StateOpen {
		p.metrics.CircuitBreakerTrips.Inc()
	}
}

// BreakerState reports the breaker state name; /healthz shows it.
func (p *Proxy) BreakerState() string {
	return p.breaker.State().String()
}
