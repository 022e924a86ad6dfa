package httpapi

import (
	"context"
	"errors"
	"net/http"

	"feedcore/internal/adapters/httpapi/middleware"
	"feedcore/internal/core/errs"

	"github.com/gin-gonic/gin"
)

// statusOf maps the error taxonomy onto HTTP. Only validation, not-found and
// forbidden errors expose their message; store failures never leak.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errs.ErrCapacity):
		return http.StatusInsufficientStorage, "storage capacity exceeded"
	case errors.Is(err, errs.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "temporarily unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, msg := statusOf(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// currentUser returns the authenticated user id or aborts with 401.
func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found in context"})
		return "", false
	}
	return userID, true
}
