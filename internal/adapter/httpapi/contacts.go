package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"contact-manager/internal/contact"
	"contact-manager/internal/shared"
)

const maxRequestBody = 1 << 20

func (s *server) listContacts(c *gin.Context) {
	body, err := s.Proxy.ListContacts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

func (s *server) createContact(c *gin.Context) {
	body, err := readObject(c)
	if err != nil {
		writeError(c, err)
		return
	}
	status, err := s.Proxy.CreateContact(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(status)
}

func (s *server) createUser(c *gin.Context) {
	body, err := readObject(c)
	if err != nil {
		writeError(c, err)
		return
	}
	var u contact.NewUser
	if err := json.Unmarshal(body, &u); err != nil {
		writeError(c, shared.Violation(map[string]string{"username": "must be a string"}))
		return
	}
	if err := contact.ValidateUser(u); err != nil {
		writeError(c, err)
		return
	}
	status, err := s.Proxy.CreateUser(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(status)
}

// readObject reads the request body and checks it is one JSON object.
// The object itself is forwarded untouched.
func readObject(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody+1))
	if err != nil {
		return nil, shared.Violation(map[string]string{"body": "could not be read"})
	}
	if len(body) > maxRequestBody {
		return nil, shared.Violation(map[string]string{"body": "is too large"})
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &obj); err != nil || obj == nil {
		return nil, shared.Violation(map[string]string{"body": "must be a JSON object"})
	}
	return body, nil
}
