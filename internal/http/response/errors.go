package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/coursecatalog-backend/internal/domain/aggregates"
	"github.com/yungbote/coursecatalog-backend/internal/pkg/logger"
)

// StatusFor maps an aggregate error code to its HTTP status.
func StatusFor(code domainagg.ErrorCode) int {
	switch code {
	case domainagg.CodeValidation, domainagg.CodeBusinessRule, domainagg.CodeInvariantViolation:
		return http.StatusBadRequest
	case domainagg.CodeNotFound:
		return http.StatusNotFound
	case domainagg.CodeConflict:
		return http.StatusConflict
	case domainagg.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case domainagg.CodeRetryable:
		return http.StatusServiceUnavailable
	case domainagg.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// RespondAggregateError is the single error exit of the catalog handlers.
// Internal failures are logged with their cause and answered with a generic message.
func RespondAggregateError(c *gin.Context, log *logger.Logger, op, level, id string, err error) {
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		aggErr = &domainagg.Error{Code: domainagg.CodeInternal, Op: op, Message: "internal error", Cause: err}
	}
	status := StatusFor(aggErr.Code)
	if log != nil {
		fields := []interface{}{"op", op, "level", level, "id", id, "code", aggErr.Code, "status", status, "error", err}
		if status >= http.StatusInternalServerError {
			log.Error("Catalog request failed", fields...)
		} else {
			log.Warn("Catalog request rejected", fields...)
		}
	}
	_ = c.Error(err)

	msg := aggErr.Message
	if status >= http.StatusInternalServerError && aggErr.Code != domainagg.CodeRetryable && aggErr.Code != domainagg.CodeTimeout {
		msg = "internal error"
	}
	if msg == "" {
		msg = string(aggErr.Code)
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    string(aggErr.Code),
			Details: aggErr.Details,
		},
	})
}
