package httpHandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"signage-server/repositories"
	"signage-server/services"
	"signage-server/transport"
	"signage-server/usecases"
)

// respondError maps domain errors to a status code and a machine readable code.
func respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, usecases.ErrUnknownTarget):
		status, code = http.StatusNotFound, "unknown_target"
	case errors.Is(err, usecases.ErrInvalidCommandType):
		status, code = http.StatusBadRequest, "invalid_command_type"
	case errors.Is(err, usecases.ErrInvalidCommandValue):
		status, code = http.StatusBadRequest, "invalid_command_value"
	case errors.Is(err, usecases.ErrInvalidContent):
		status, code = http.StatusBadRequest, "invalid_content"
	case errors.Is(err, usecases.ErrInvalidDevice),
		errors.Is(err, usecases.ErrInvalidGroup),
		errors.Is(err, services.ErrInvalidProgress),
		errors.Is(err, transport.ErrInvalidEvent):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, services.ErrWrongDevice):
		status, code = http.StatusConflict, "wrong_device"
	case errors.Is(err, services.ErrNotLaneHead):
		status, code = http.StatusConflict, "not_lane_head"
	case errors.Is(err, repositories.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
		"code":    "invalid_request",
	})
}
