package store

import (
	"context"
	"sync"
	"time"

	"github.com/jinzhu/gorm"

	"taboon/internal/database"
	"taboon/internal/models"
)

// DefaultListLimit bounds recent-first order listings
const DefaultListLimit = 100

// Orders is the single source of truth for orders and the order id
// counter. It is created once and shared by every component.
type Orders struct {
	db    *gorm.DB
	seqMu sync.Mutex
}

// ListOptions filters and bounds an order listing
type ListOptions struct {
	OrderType models.OrderType
	Limit     int
}

// Stats aggregates the current order table
type Stats struct {
	Total        int                        `json:"total"`
	Today        int                        `json:"today"`
	TodayRevenue float64                    `json:"todayRevenue"`
	ByStatus     map[models.OrderStatus]int `json:"byStatus"`
	ByType       map[models.OrderType]int   `json:"byType"`
}

// NewOrders creates an order store on top of a migrated database
func NewOrders(db *gorm.DB) *Orders {
	return &Orders{db: db}
}

// NextID increments the persisted order sequence and returns the new id.
// The counter outlives deletions and the daily wipe, so ids never repeat.
func (s *Orders) NextID(ctx context.Context) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	var seq models.Sequence
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Sequence{}).
			Where("name = ?", database.OrderSequence).
			UpdateColumn("value", gorm.Expr("value + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			seq = models.Sequence{Name: database.OrderSequence, Value: database.SequenceSeed + 1}
			return tx.Create(&seq).Error
		}
		return tx.Where("name = ?", database.OrderSequence).First(&seq).Error
	})
	if err != nil {
		return 0, &models.PersistenceError{Op: "next id", Err: err}
	}
	return seq.Value, nil
}

// Create persists a fully populated order. Timestamps are stored in UTC
// so that range queries compare consistently on every driver.
func (s *Orders) Create(ctx context.Context, order *models.Order) error {
	if order.ID <= 0 {
		return &models.ValidationError{Field: "id", Reason: "must be assigned before create"}
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	order.UpdatedAt = order.UpdatedAt.UTC()
	if err := s.db.Create(order).Error; err != nil {
		return &models.PersistenceError{Op: "create", Err: err}
	}
	return nil
}

// Get loads a single order
func (s *Orders) Get(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.Where("id = ?", id).First(&order).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "get", Err: err}
	}
	return &order, nil
}

// List returns orders newest first
func (s *Orders) List(ctx context.Context, opts ListOptions) ([]models.Order, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := s.db.Order("id desc").Limit(limit)
	if opts.OrderType != "" {
		query = query.Where("order_type = ?", opts.OrderType)
	}

	orders := make([]models.Order, 0)
	if err := query.Find(&orders).Error; err != nil {
		return nil, &models.PersistenceError{Op: "list", Err: err}
	}
	return orders, nil
}

// Since returns orders with an id greater than lastID, oldest first
func (s *Orders) Since(ctx context.Context, lastID int64) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	err := s.db.Where("id > ?", lastID).Order("id asc").Limit(DefaultListLimit).Find(&orders).Error
	if err != nil {
		return nil, &models.PersistenceError{Op: "since", Err: err}
	}
	return orders, nil
}

// ReadySince returns ready orders whose ready notification is newer than t
func (s *Orders) ReadySince(ctx context.Context, t time.Time) ([]models.Order, error) {
	var ready []models.Order
	err := s.db.Where("status = ?", models.OrderStatusReady).Order("id asc").Find(&ready).Error
	if err != nil {
		return nil, &models.PersistenceError{Op: "ready since", Err: err}
	}

	out := make([]models.Order, 0, len(ready))
	for _, o := range ready {
		if o.ReadyNotification != nil && o.ReadyNotification.Timestamp.After(t) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Update applies a merge-patch and refreshes the update timestamp
func (s *Orders) Update(ctx context.Context, id int64, patch models.OrderPatch) (*models.Order, error) {
	fields := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	if patch.Notes != nil {
		fields["notes"] = *patch.Notes
	}
	if patch.ReadyNotification != nil {
		fields["ready_notification"] = *patch.ReadyNotification
	}

	res := s.db.Model(&models.Order{}).Where("id = ?", id).UpdateColumns(fields)
	if res.Error != nil {
		return nil, &models.PersistenceError{Op: "update", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes an order
func (s *Orders) Delete(ctx context.Context, id int64) error {
	res := s.db.Where("id = ?", id).Delete(&models.Order{})
	if res.Error != nil {
		return &models.PersistenceError{Op: "delete", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteCreatedBefore removes every order created before cutoff
func (s *Orders) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.Where("created_at < ?", cutoff.UTC()).Delete(&models.Order{})
	if res.Error != nil {
		return 0, &models.PersistenceError{Op: "delete before", Err: res.Error}
	}
	return res.RowsAffected, nil
}

// DeleteAll wipes the order table. The id sequence is left untouched.
func (s *Orders) DeleteAll(ctx context.Context) (int64, error) {
	res := s.db.Delete(&models.Order{})
	if res.Error != nil {
		return 0, &models.PersistenceError{Op: "delete all", Err: res.Error}
	}
	return res.RowsAffected, nil
}

// Count returns the number of stored orders
func (s *Orders) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.Model(&models.Order{}).Count(&n).Error; err != nil {
		return 0, &models.PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

type groupCount struct {
	Label string
	Count int
}

// Stats counts orders by status and type, plus today's orders and the
// revenue of orders delivered today.
func (s *Orders) Stats(ctx context.Context, dayStart time.Time) (*Stats, error) {
	stats := &Stats{
		ByStatus: make(map[models.OrderStatus]int, len(models.OrderStatuses)),
		ByType:   make(map[models.OrderType]int, len(models.OrderTypes)),
	}
	for _, st := range models.OrderStatuses {
		stats.ByStatus[st] = 0
	}
	for _, ot := range models.OrderTypes {
		stats.ByType[ot] = 0
	}

	orders := s.db.Model(&models.Order{})
	if err := orders.Count(&stats.Total).Error; err != nil {
		return nil, &models.PersistenceError{Op: "stats", Err: err}
	}
	if err := s.db.Model(&models.Order{}).Where("created_at >= ?", dayStart.UTC()).Count(&stats.Today).Error; err != nil {
		return nil, &models.PersistenceError{Op: "stats", Err: err}
	}

	var byStatus []groupCount
	if err := s.db.Model(&models.Order{}).Select("status as label, count(*) as count").Group("status").Scan(&byStatus).Error; err != nil {
		return nil, &models.PersistenceError{Op: "stats", Err: err}
	}
	for _, g := range byStatus {
		stats.ByStatus[models.OrderStatus(g.Label)] = g.Count
	}

	var byType []groupCount
	if err := s.db.Model(&models.Order{}).Select("order_type as label, count(*) as count").Group("order_type").Scan(&byType).Error; err != nil {
		return nil, &models.PersistenceError{Op: "stats", Err: err}
	}
	for _, g := range byType {
		stats.ByType[models.OrderType(g.Label)] = g.Count
	}

	var revenue struct{ Total float64 }
	err := s.db.Model(&models.Order{}).
		Select("coalesce(sum(total), 0) as total").
		Where("status = ? AND created_at >= ?", models.OrderStatusDelivered, dayStart.UTC()).
		Scan(&revenue).Error
	if err != nil {
		return nil, &models.PersistenceError{Op: "stats", Err: err}
	}
	stats.TodayRevenue = revenue.Total

	return stats, nil
}

// Ping checks the database connection
func (s *Orders) Ping(ctx context.Context) error {
	return s.db.DB().PingContext(ctx)
}
