package api

import (
	"errors"
	"io"

	"commerce-service/internal/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError writes the typed error as JSON. Internal causes are logged,
// never returned to the client.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)

	message := "internal error"
	if kind == apperror.KindInternal {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	} else if typed := apperror.As(err); typed != nil {
		message = typed.Message()
	}

	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{
		"error": message,
		"code":  kind,
	})
}

// bind decodes and validates the JSON body, answering 400 on failure
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		c.AbortWithStatusJSON(apperror.KindValidation.HTTPStatus(), gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
			"code":    apperror.KindValidation,
		})
		return false
	}
	return true
}
