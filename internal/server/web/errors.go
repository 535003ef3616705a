package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
	"github.com/dmitrijs2005/schemadiagram/internal/server/processing"
)

type errorResponse struct {
	Key    string `json:"key,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error"`
}

func statusFor(err error) int {
	var mb *http.MaxBytesError
	switch {
	case errors.Is(err, common.ErrInvalidKey), errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrSaturated), errors.Is(err, common.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &mb):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON with the status it maps to. Internal
// errors are logged and hidden; a recorded processing failure is shown
// together with its key.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)

	var pe *processing.ProcessingError
	switch {
	case errors.As(err, &pe):
		c.JSON(status, errorResponse{Key: pe.Key.String(), Error: pe.Message})
	case status == http.StatusInternalServerError:
		h.logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(status, errorResponse{Error: common.ErrorInternal.Error()})
	case status == http.StatusRequestEntityTooLarge:
		c.JSON(status, errorResponse{Error: "upload too large"})
	default:
		c.JSON(status, errorResponse{Error: err.Error()})
	}
}
