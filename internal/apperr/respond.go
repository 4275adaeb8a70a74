package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Status maps a service error to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes the error as a JSON body with the mapped status. Unknown
// errors are hidden behind a generic message so internals do not leak.
func Respond(c *gin.Context, err error) {
	code := Status(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(code, gin.H{"error": msg})
}
