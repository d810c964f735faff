package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taboon/internal/models"
)

// fail maps a component error onto the HTTP response
func (a *API) fail(c *gin.Context, err error) {
	var ve *models.ValidationError
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": models.TextOrderNotFound})
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": ve.Error()})
	default:
		a.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": models.TextServiceError})
	}
}
