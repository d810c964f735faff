package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"taboon/internal/chat"
	"taboon/internal/events"
	"taboon/internal/lifecycle"
	"taboon/internal/monitoring"
	"taboon/internal/realtime"
	"taboon/internal/retention"
	"taboon/internal/store"
)

// Version is reported by the health endpoint
const Version = "3.2.0"

// Deps are the components the HTTP layer routes requests to
type Deps struct {
	Orders    *store.Orders
	Customers *store.Customers
	Assistant *chat.Assistant
	Lifecycle *lifecycle.Service
	Registry  *realtime.Registry
	Retention *retention.Scheduler
	Publisher events.Publisher
	Metrics   *monitoring.Metrics
	Monitor   *monitoring.Monitor
	Logger    *slog.Logger

	// Location defines "today" for statistics and reads timestamps that
	// carry no zone
	Location *time.Location

	CustomerSiteDir string
	StaffSiteDir    string
}

// API represents the HTTP surface of the order broker
type API struct {
	Router *gin.Engine
	deps   Deps
	logger *slog.Logger
}

// New creates the router with every route registered
func New(deps Deps) *API {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Monitor == nil {
		deps.Monitor = monitoring.NewMonitor()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(deps.Logger), cors())

	a := &API{
		Router: router,
		deps:   deps,
		logger: deps.Logger,
	}
	a.setupRoutes()
	return a
}

// setupRoutes configures all API endpoints
func (a *API) setupRoutes() {
	api := a.Router.Group("/api")
	{
		api.POST("/chat", a.Chat)
		api.POST("/identify", a.Identify)

		api.GET("/orders", a.ListOrders)
		api.POST("/orders", a.CreateOrder)
		api.GET("/orders/poll", a.PollOrders)
		api.GET("/orders/:id", a.GetOrder)
		api.PATCH("/orders/:id", a.UpdateOrder)
		api.DELETE("/orders/:id", a.DeleteOrder)

		api.GET("/stats", a.Stats)
		api.GET("/notifications/ready", a.ReadyNotifications)
		api.DELETE("/cleanup", a.Cleanup)
		api.GET("/health", a.Health)
	}

	a.Router.GET("/ws/notifications", a.Notifications)
	a.Router.GET("/ws/notifications/:orderId", a.OrderNotifications)

	a.Router.NoRoute(a.serveStatic)
}
