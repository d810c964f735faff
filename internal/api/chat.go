package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"taboon/internal/chat"
	"taboon/internal/models"
)

// Chat runs one assistant turn
func (a *API) Chat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": models.TextMessageRequired})
		return
	}

	resp, err := a.deps.Assistant.Reply(c.Request.Context(), req)
	if err != nil {
		var upstream *models.UpstreamServiceError
		if errors.As(err, &upstream) {
			a.logger.Error("chat completion failed", "provider", upstream.Provider, "error", upstream.Err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   models.TextServiceError,
				"reply":   models.ChatApology,
			})
			return
		}
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"reply":   resp.Reply,
		"orderId": resp.OrderID,
	})
}

type identifyRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// Identify tells the customer page whether this browser is known
func (a *API) Identify(c *gin.Context) {
	var req identifyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Fingerprint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "fingerprint required"})
		return
	}

	profile, found, err := a.deps.Customers.Lookup(c.Request.Context(), req.Fingerprint)
	if err != nil {
		a.logger.Warn("customer lookup failed", "fingerprint", req.Fingerprint, "error", err)
		found = false
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"success": true, "found": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "found": true, "data": profile})
}
