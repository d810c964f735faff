package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taboon/internal/models"
)

// Stats aggregates the order table for the staff dashboard
func (a *API) Stats(c *gin.Context) {
	stats, err := a.deps.Orders.Stats(c.Request.Context(), a.dayStart())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

type readyNotification struct {
	OrderID   int64            `json:"orderId"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	OrderType models.OrderType `json:"orderType"`
}

// ReadyNotifications lets a page that missed websocket frames catch up on
// orders that became ready after ?since
func (a *API) ReadyNotifications(c *gin.Context) {
	since, ok := a.parseSince(c.Query("since"))
	if !ok {
		since = time.Now().Add(-time.Minute)
	}

	out := make([]readyNotification, 0)
	orders, err := a.deps.Orders.ReadySince(c.Request.Context(), since)
	if err != nil {
		a.logger.Error("failed to load ready notifications", "error", err)
	}
	for _, o := range orders {
		out = append(out, readyNotification{
			OrderID:   o.ID,
			Message:   o.ReadyNotification.Message,
			Timestamp: o.ReadyNotification.Timestamp,
			OrderType: o.OrderType,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "notifications": out})
}

// parseSince accepts RFC3339 and, without a zone, a local wall-clock
// timestamp in the business timezone
func (a *API) parseSince(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, raw, a.deps.Location); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Cleanup wipes every order on demand. Customers and the id sequence stay.
func (a *API) Cleanup(c *gin.Context) {
	n, err := a.deps.Orders.DeleteAll(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	a.deps.Metrics.RetentionDeleted("manual", n)
	a.deps.Monitor.RecordEvent("manual_cleanup")
	a.logger.Info("manual cleanup", "deleted", n)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": models.CleanupMessage(n)})
}

// Health reports liveness, the order count, database reachability and
// the last retention and cleanup events
func (a *API) Health(c *gin.Context) {
	ctx := c.Request.Context()
	database := "connected"
	if err := a.deps.Orders.Ping(ctx); err != nil {
		database = "unavailable"
	}
	count, err := a.deps.Orders.Count(ctx)
	if err != nil {
		count = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"server":        models.TextServerName,
		"version":       Version,
		"orders":        count,
		"uptimeSeconds": int64(a.deps.Monitor.Uptime().Seconds()),
		"database":      database,
		"monitor":       a.deps.Monitor.GetMetrics(),
	})
}
