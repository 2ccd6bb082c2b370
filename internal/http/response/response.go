package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursecatalog-backend/internal/pkg/pagination"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Envelope wraps every successful response.
type Envelope struct {
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Meta    *pagination.Meta  `json:"meta,omitempty"`
	Links   *pagination.Links `json:"links,omitempty"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Envelope{Message: message, Data: data})
}

func RespondCreated(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Envelope{Message: message, Data: data})
}

func RespondPage(c *gin.Context, message string, data any, meta pagination.Meta, links pagination.Links) {
	c.JSON(http.StatusOK, Envelope{Message: message, Data: data, Meta: &meta, Links: &links})
}
