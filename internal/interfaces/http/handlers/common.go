// Package handlers implements the HTTP API handlers.  Handlers translate
// between the wire and the application services; no search logic lives here.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/helixforge/helixforge/pkg/errors"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// respondError maps an application error onto its HTTP status and envelope.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	resp := errorResponse{
		Code:    string(code),
		Message: err.Error(),
	}
	if appErr, ok := err.(*errors.AppError); ok {
		resp.Message = appErr.Message
		resp.Detail = appErr.Detail
	}
	c.AbortWithStatusJSON(errors.HTTPStatusForCode(code), resp)
}

// intQuery parses an integer query parameter with a fallback.
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
