package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/moderation/internal/domain"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = "5"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	// Status is the item's current status on a conflict.
	Status domain.Status `json:"status,omitempty"`
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("Invalid request body", logger.String("path", c.FullPath()), logger.Error(err))
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

// writeError maps an error kind to its HTTP status.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
	)

	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: domain.ErrConflict.Error(), Status: conflict.Current})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: validation.Message, Field: validation.Field})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.logger.Warn("Storage unavailable", logger.String("path", c.FullPath()), logger.Error(err))
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: domain.ErrStorageUnavailable.Error()})
	default:
		h.logger.Error("Request failed", logger.String("path", c.FullPath()), logger.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
