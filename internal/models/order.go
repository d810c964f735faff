package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// OrderStatus represents the possible states of an order
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in display order
var OrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether s belongs to the closed status set
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// OrderType tells the kitchen how the customer will receive the order
type OrderType string

const (
	OrderTypeDineIn    OrderType = "dine_in"
	OrderTypeCarPickup OrderType = "car_pickup"
	OrderTypeDelivery  OrderType = "delivery"
)

// OrderTypes lists every order type in display order
var OrderTypes = []OrderType{
	OrderTypeDineIn,
	OrderTypeCarPickup,
	OrderTypeDelivery,
}

// Valid reports whether t is one of the known order types
func (t OrderType) Valid() bool {
	for _, known := range OrderTypes {
		if t == known {
			return true
		}
	}
	return false
}

// OrderSource records where an order was entered
type OrderSource string

const (
	OrderSourceChat   OrderSource = "ai_chat"
	OrderSourceManual OrderSource = "manual"
)

// Order represents a customer order. The ID is assigned by the store's
// sequence before insert and is never reused.
type Order struct {
	ID                int64              `gorm:"primary_key;auto_increment:false" json:"id"`
	CustomerName      string             `json:"customerName"`
	Phone             string             `json:"phone"`
	Items             string             `gorm:"type:text" json:"items"`
	Total             float64            `json:"total"`
	OrderType         OrderType          `gorm:"index" json:"orderType"`
	Location          string             `json:"location"`
	Address           string             `json:"address"`
	CarInfo           string             `json:"carInfo"`
	DeliveryNotes     string             `gorm:"type:text" json:"deliveryNotes"`
	Notes             string             `gorm:"type:text" json:"notes"`
	Status            OrderStatus        `gorm:"index" json:"status"`
	CreatedAt         time.Time          `gorm:"index" json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	ReadyNotification *ReadyNotification `gorm:"type:text" json:"readyNotification,omitempty"`
	Source            OrderSource        `json:"source"`
	Fingerprint       string             `gorm:"index" json:"fingerprint,omitempty"`
}

// TableName implements the gorm tabler interface
func (Order) TableName() string { return "orders" }

// StatusText returns the customer-facing description of the order status
func (o *Order) StatusText() string {
	return StatusText(o.Status)
}

// ReadyNotification is attached to an order when it becomes ready
type ReadyNotification struct {
	Sent      bool      `json:"sent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Value stores the notification as a JSON document
func (n ReadyNotification) Value() (driver.Value, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan converts the stored JSON document back into a notification
func (n *ReadyNotification) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*n = ReadyNotification{}
		return nil
	case []byte:
		return json.Unmarshal(v, n)
	case string:
		return json.Unmarshal([]byte(v), n)
	default:
		return errors.New("unsupported type for ReadyNotification")
	}
}

// OrderPatch is a merge-patch for an order. Nil fields are left untouched.
type OrderPatch struct {
	Status            *OrderStatus
	Notes             *string
	ReadyNotification *ReadyNotification
}

// Empty reports whether the patch carries no field
func (p OrderPatch) Empty() bool {
	return p.Status == nil && p.Notes == nil && p.ReadyNotification == nil
}

// Sequence is a named monotonic counter row
type Sequence struct {
	Name  string `gorm:"primary_key"`
	Value int64
}

// TableName implements the gorm tabler interface
func (Sequence) TableName() string { return "sequences" }
