package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eosdis/harmony-workflow/internal/platform/apierr"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// RespondError maps any error to the {code, description} envelope. Unknown
// errors surface as a generic service error so internal detail never leaks.
func RespondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	c.JSON(ae.Status, ErrorBody{
		Code:        ae.Code,
		Description: "Error: " + ae.Error(),
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
