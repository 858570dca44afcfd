package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"contact-manager/internal/platform/metrics"
	"contact-manager/internal/session"
)

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// resolveSession puts the cookie's session id into the request context.
// A missing cookie is not rejected here; the token acquirer reports it.
func (s *server) resolveSession(c *gin.Context) {
	if s.Cookies == nil {
		c.Next()
		return
	}
	if id, err := s.Cookies.SessionID(c.Request); err == nil {
		c.Request = c.Request.WithContext(session.WithID(c.Request.Context(), id))
	}
	c.Next()
}

func rateLimit(l *RateLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := session.IDFromContext(c.Request.Context())
		if !ok {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key) {
			if m != nil {
				m.RateLimiterRejections.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
