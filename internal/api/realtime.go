package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taboon/internal/realtime"
)

// Notifications upgrades to a websocket subscribed to every ready event
func (a *API) Notifications(c *gin.Context) {
	if err := realtime.Serve(a.deps.Registry, c.Writer, c.Request); err != nil {
		a.logger.Warn("websocket upgrade failed", "error", err)
	}
}

// OrderNotifications upgrades to a websocket that is also subscribed to
// one order
func (a *API) OrderNotifications(c *gin.Context) {
	id, ok := parseID(c, "orderId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid order id"})
		return
	}
	if err := realtime.Serve(a.deps.Registry, c.Writer, c.Request, id); err != nil {
		a.logger.Warn("websocket upgrade failed", "order_id", id, "error", err)
	}
}
