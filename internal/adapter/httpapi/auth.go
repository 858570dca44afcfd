package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"contact-manager/internal/session"
	"contact-manager/internal/shared"
)

func (s *server) login(c *gin.Context) {
	state := session.NewID()
	if err := s.Cookies.SetState(c.Writer, c.Request, state); err != nil {
		s.Log.Error("store login state", "error", err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.Redirect(http.StatusFound, s.Auth.AuthCodeURL(state))
}

type callbackResponse struct {
	Session   string    `json:"session"`
	ExpiresAt time.Time `json:"expires_at"`
}

// callback finishes sign-in. The response carries the cookie value as well so
// command-line clients can keep it without a cookie jar.
func (s *server) callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		writeError(c, shared.Auth("sign-in failed: "+c.DefaultQuery("error_description", e), nil))
		return
	}
	want, err := s.Cookies.State(c.Request)
	if err != nil || want != c.Query("state") {
		writeError(c, shared.Auth("sign-in state mismatch", err))
		return
	}
	code := c.Query("code")
	if code == "" {
		writeError(c, shared.Violation(map[string]string{"code": "is required"}))
		return
	}

	tokens, err := s.Auth.Exchange(c.Request.Context(), code)
	if err != nil {
		s.Log.Warn("code exchange failed", "error", err)
		writeError(c, err)
		return
	}
	sess := session.New(tokens, time.Now(), s.SessionTTL)
	if err := s.Sessions.Save(c.Request.Context(), sess); err != nil {
		s.Log.Error("save session", "error", err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	value, err := s.Cookies.SetSessionID(c.Writer, c.Request, sess.ID)
	if err != nil {
		s.Log.Error("set session cookie", "error", err)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	s.Log.Info("signed in", "session_id", sess.ID)
	c.JSON(http.StatusOK, callbackResponse{Session: value, ExpiresAt: sess.ExpiresAt})
}

// logout forgets the session. GET comes from a browser and continues to the
// identity provider; POST comes from the client and just gets 204.
func (s *server) logout(c *gin.Context) {
	if id, err := s.Cookies.SessionID(c.Request); err == nil {
		if err := s.Sessions.Delete(c.Request.Context(), id); err != nil {
			s.Log.Error("delete session", "session_id", id, "error", err)
			c.String(http.StatusInternalServerError, "internal error")
			return
		}
		s.Log.Info("signed out", "session_id", id)
	}
	if err := s.Cookies.Clear(c.Writer, c.Request); err != nil {
		s.Log.Warn("clear session cookie", "error", err)
	}
	if c.Request.Method == http.MethodGet && s.Auth != nil {
		c.Redirect(http.StatusFound, s.Auth.LogoutURL(s.PublicURL))
		return
	}
	c.Status(http.StatusNoContent)
}
