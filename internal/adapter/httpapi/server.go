// Package httpapi is the proxy's HTTP surface: the contact routes the client
// calls, the sign-in flow, health and metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"contact-manager/internal/platform/metrics"
	"contact-manager/internal/session"
)

// ContactsProxy forwards contact calls upstream.
type ContactsProxy interface {
	ListContacts(ctx context.Context) ([]byte, error)
	CreateContact(ctx context.Context, body []byte) (int, error)
	CreateUser(ctx context.Context, body []byte) (int, error)
	// BreakerState names the resource server breaker state.
	BreakerState() string
}

// Authenticator runs the identity provider side of sign-in.
type Authenticator interface {
	AuthCodeURL(state string) string
	LogoutURL(returnTo string) string
	Exchange(ctx context.Context, code string) (session.Tokens, error)
}

// Deps are the collaborators of the router.
type Deps struct {
	Proxy    ContactsProxy
	Auth     Authenticator
	Sessions session.Store
	Cookies  *session.Cookies
	Limiter  *RateLimiter
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
	// SessionTTL bounds a session created by the callback.
	SessionTTL time.Duration
	// PublicURL is where the browser lands after logout.
	PublicURL string
}

type server struct {
	Deps
}

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 7 * 24 * time.Hour
	}
	s := &server{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Log))
	if d.Metrics != nil {
		r.Use(metricsMiddleware(d.Metrics))
	}

	r.GET("/healthz", s.health)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := r.Group("/auth")
	auth.GET("/login", s.login)
	auth.GET("/callback", s.callback)
	auth.GET("/logout", s.logout)
	auth.POST("/logout", s.logout)

	api := r.Group("/api", s.resolveSession)
	if d.Limiter != nil {
		api.Use(rateLimit(d.Limiter, d.Metrics))
	}
	api.GET("/contacts", s.listContacts)
	api.POST("/contacts", s.createContact)
	api.POST("/users", s.createUser)
	return r
}

func (s *server) health(c *gin.Context) {
	checks := gin.H{}
	status := http.StatusOK
	if s.Sessions != nil {
		if err := s.Sessions.Ping(c.Request.Context()); err != nil {
			checks["sessions"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["sessions"] = "ok"
		}
	}
	degraded := status != http.StatusOK
	if s.Proxy != nil {
		// An open breaker is reported but does not fail the probe: restarting
		// the proxy would not bring the resource server back.
		bs := s.Proxy.BreakerState()
		checks["resource_server"] = bs
		if bs != "closed" {
			degraded = true
		}
	}
	state := "ok"
	if degraded {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
