package api

import (
	"errors"
	"net/http"

	"fleetconsole/pkg/availability"
	"fleetconsole/pkg/backend"
	"fleetconsole/pkg/dispatch"

	"github.com/gin-gonic/gin"
)

// respondError sends a structured JSON error response
func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"error": gin.H{
			"message": message,
			"status":  code,
		},
	})
	c.Abort()
}

// respondErr maps a domain error to its HTTP status
func respondErr(c *gin.Context, err error) {
	respondError(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrUnknownConfirmation),
		errors.Is(err, availability.ErrUnknownSession),
		errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrNotCustomDevice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, availability.ErrWatcherClosed):
		return http.StatusGone
	case errors.Is(err, dispatch.ErrOperationFailed),
		errors.As(err, &statusErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
