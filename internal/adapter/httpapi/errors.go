package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contact-manager/internal/shared"
)

// writeError renders err the way the client expects to read it back:
// upstream answers are mirrored, auth failures become 401, transport
// failures become 502 with the fetch-failed marker.
func writeError(c *gin.Context, err error) {
	switch shared.KindOf(err) {
	case shared.KindUpstream:
		var ue *shared.UpstreamError
		if !errors.As(err, &ue) {
			c.String(http.StatusBadGateway, err.Error())
			return
		}
		c.Data(ue.Status, "text/plain; charset=utf-8", []byte(ue.Body))
	case shared.KindAuth:
		c.String(http.StatusUnauthorized, err.Error())
	case shared.KindValidation:
		var ve *shared.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ve.Error(), "violations": ve.Violations})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case shared.KindCanceled:
		// Client went away; nobody reads the answer.
		c.Status(499)
	case shared.KindTransport:
		c.String(http.StatusBadGateway, shared.FetchFailedText)
	default:
		c.String(http.StatusInternalServerError, "internal error")
	}
}
