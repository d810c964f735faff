package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"taboon/internal/events"
	"taboon/internal/models"
	"taboon/internal/monitoring"
)

// OrderStore is the part of the order store the lifecycle needs
type OrderStore interface {
	Get(ctx context.Context, id int64) (*models.Order, error)
	Update(ctx context.Context, id int64, patch models.OrderPatch) (*models.Order, error)
}

// Notifier fans a frame out to the global subscribers and to the
// subscribers of one order, once per connection
type Notifier interface {
	Notify(orderID int64, payload interface{}) int
}

// Change is a staff edit; nil fields are left alone
type Change struct {
	Status *models.OrderStatus `json:"status"`
	Notes  *string             `json:"notes"`
}

// Service applies status transitions and fires the ready notification on
// the edge into ready
type Service struct {
	orders    OrderStore
	notifier  Notifier
	publisher events.Publisher
	metrics   *monitoring.Metrics
	logger    *slog.Logger
	now       func() time.Time

	// serializes read-modify-write so the ready edge is seen once
	mu sync.Mutex
}

// Option configures a Service
type Option func(*Service)

// WithPublisher emits every status change to downstream consumers
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics records status changes
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the lifecycle service
func NewService(orders OrderStore, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		orders:    orders,
		notifier:  notifier,
		publisher: events.NopPublisher{},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetStatus moves an order to status. Any status of the closed set is
// accepted from any state.
func (s *Service) SetStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	return s.Apply(ctx, id, Change{Status: &status})
}

// SetNotes replaces the staff notes without notifying anyone
func (s *Service) SetNotes(ctx context.Context, id int64, notes string) (*models.Order, error) {
	return s.Apply(ctx, id, Change{Notes: &notes})
}

// Apply validates and persists a staff edit. When the status crosses into
// ready the notification is stored on the order and pushed to subscribers.
func (s *Service) Apply(ctx context.Context, id int64, change Change) (*models.Order, error) {
	if change.Status != nil && !change.Status.Valid() {
		return nil, &models.ValidationError{Field: "status", Reason: "unknown status " + string(*change.Status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := current.Status

	patch := models.OrderPatch{Status: change.Status, Notes: change.Notes}

	var frame *models.ReadyFrame
	if change.Status != nil && *change.Status == models.OrderStatusReady && previous != models.OrderStatusReady {
		f := models.NewReadyFrame(current, s.now())
		frame = &f
		patch.ReadyNotification = &models.ReadyNotification{
			Sent:      true,
			Message:   f.Message,
			Timestamp: f.Timestamp,
		}
	}

	updated, err := s.orders.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	if change.Status != nil {
		s.metrics.StatusChanged(string(*change.Status))
		s.logger.Info("order status updated", "order_id", id, "from", previous, "to", updated.Status)
		if err := s.publisher.Publish(ctx, events.StatusChanged(updated, previous)); err != nil {
			s.logger.Warn("failed to publish status event", "order_id", id, "error", err)
		}
	}

	if frame != nil {
		delivered := s.notifier.Notify(id, frame)
		s.logger.Info("ready notification sent", "order_id", id, "subscribers", delivered)
	}

	return updated, nil
}
