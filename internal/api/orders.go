package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taboon/internal/events"
	"taboon/internal/lifecycle"
	"taboon/internal/models"
	"taboon/internal/store"
)

// manualOrderRequest is a staff-entered order. customerName and items are
// required; everything else has a default.
type manualOrderRequest struct {
	CustomerName  *string `json:"customerName"`
	Items         *string `json:"items"`
	Phone         string  `json:"phone"`
	Total         float64 `json:"total"`
	OrderType     string  `json:"orderType"`
	Location      *string `json:"location"`
	Address       string  `json:"address"`
	CarInfo       string  `json:"carInfo"`
	DeliveryNotes string  `json:"deliveryNotes"`
	Notes         string  `json:"notes"`
}

func (r *manualOrderRequest) validate() error {
	if r.CustomerName == nil || r.Items == nil {
		return &models.ValidationError{Field: "order", Reason: models.TextMissingData}
	}
	if r.OrderType != "" && !models.OrderType(r.OrderType).Valid() {
		return &models.ValidationError{Field: "orderType", Reason: "unknown type " + r.OrderType}
	}
	if r.Total < 0 {
		return &models.ValidationError{Field: "total", Reason: "must not be negative"}
	}
	return nil
}

func (r *manualOrderRequest) toOrder(id int64) *models.Order {
	orderType := models.OrderTypeDineIn
	if r.OrderType != "" {
		orderType = models.OrderType(r.OrderType)
	}
	location := models.DefaultManualLocation
	if r.Location != nil {
		location = *r.Location
	}
	return &models.Order{
		ID:            id,
		CustomerName:  *r.CustomerName,
		Phone:         r.Phone,
		Items:         *r.Items,
		Total:         r.Total,
		OrderType:     orderType,
		Location:      location,
		Address:       r.Address,
		CarInfo:       r.CarInfo,
		DeliveryNotes: r.DeliveryNotes,
		Notes:         r.Notes,
		Status:        models.OrderStatusNew,
		Source:        models.OrderSourceManual,
	}
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (a *API) dayStart() time.Time {
	now := time.Now().In(a.deps.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.deps.Location)
}

// ListOrders returns the newest orders, optionally filtered by type, and
// triggers the daily rolling prune
func (a *API) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	if a.deps.Retention != nil {
		_, _ = a.deps.Retention.MaybePrune(ctx)
	}

	opts := store.ListOptions{}
	if ot := models.OrderType(c.Query("orderType")); ot.Valid() {
		opts.OrderType = ot
	}

	orders, err := a.deps.Orders.List(ctx, opts)
	if err != nil {
		a.logger.Error("failed to list orders", "error", err)
		orders = []models.Order{}
	}

	byType := map[models.OrderType]int{}
	for _, ot := range models.OrderTypes {
		byType[ot] = 0
	}
	if stats, err := a.deps.Orders.Stats(ctx, a.dayStart()); err == nil {
		byType = stats.ByType
	} else {
		a.logger.Error("failed to count orders by type", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"orders":  orders,
		"total":   len(orders),
		"byType":  byType,
	})
}

// CreateOrder records a staff-entered order
func (a *API) CreateOrder(c *gin.Context) {
	var req manualOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": models.TextMissingData})
		return
	}
	if err := req.validate(); err != nil {
		a.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	id, err := a.deps.Orders.NextID(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}
	order := req.toOrder(id)
	if err := a.deps.Orders.Create(ctx, order); err != nil {
		a.fail(c, err)
		return
	}

	a.deps.Metrics.OrderCreated(string(order.Source), string(order.OrderType))
	if err := a.deps.Publisher.Publish(ctx, events.Created(order)); err != nil {
		a.logger.Warn("failed to publish order event", "order_id", id, "error", err)
	}
	a.logger.Info("manual order created", "order_id", id, "customer", order.CustomerName)

	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// PollOrders returns orders newer than ?since
func (a *API) PollOrders(c *gin.Context) {
	since := int64(1000)
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			a.fail(c, &models.ValidationError{Field: "since", Reason: "must be an order id"})
			return
		}
		since = v
	}

	orders, err := a.deps.Orders.Since(c.Request.Context(), since)
	if err != nil {
		a.logger.Error("failed to poll orders", "error", err)
		orders = nil
	}
	if len(orders) == 0 {
		c.JSON(http.StatusOK, gin.H{"hasUpdates": false, "lastId": since})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hasUpdates": true,
		"orders":     orders,
		"lastId":     orders[len(orders)-1].ID,
	})
}

// GetOrder is the public status view of one order
func (a *API) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		a.fail(c, models.ErrNotFound)
		return
	}

	order, err := a.deps.Orders.Get(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"id":           order.ID,
		"status":       order.Status,
		"items":        order.Items,
		"total":        order.Total,
		"orderType":    order.OrderType,
		"statusText":   order.StatusText(),
		"notification": order.ReadyNotification,
		"updatedAt":    order.UpdatedAt,
	})
}

// UpdateOrder applies a staff edit of status and/or notes
func (a *API) UpdateOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		a.fail(c, models.ErrNotFound)
		return
	}

	var change lifecycle.Change
	if err := c.ShouldBindJSON(&change); err != nil {
		a.fail(c, &models.ValidationError{Field: "body", Reason: err.Error()})
		return
	}

	order, err := a.deps.Lifecycle.Apply(c.Request.Context(), id, change)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

// DeleteOrder removes an order permanently
func (a *API) DeleteOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		a.fail(c, models.ErrNotFound)
		return
	}
	if err := a.deps.Orders.Delete(c.Request.Context(), id); err != nil {
		a.fail(c, err)
		return
	}
	a.logger.Info("order deleted", "order_id", id)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": models.TextOrderDeleted})
}
