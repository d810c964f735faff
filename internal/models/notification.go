package models

import "time"

// FrameOrderReady is the type tag of the ready notification frame
const FrameOrderReady = "order_ready"

// ReadyFrame is pushed to websocket subscribers when an order becomes ready
type ReadyFrame struct {
	Type         string    `json:"type"`
	OrderID      int64     `json:"orderId"`
	Message      string    `json:"message"`
	OrderType    OrderType `json:"orderType"`
	CustomerName string    `json:"customerName"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewReadyFrame builds the frame for an order that just became ready
func NewReadyFrame(order *Order, at time.Time) ReadyFrame {
	return ReadyFrame{
		Type:         FrameOrderReady,
		OrderID:      order.ID,
		Message:      ReadyMessage(order.ID, order.OrderType),
		OrderType:    order.OrderType,
		CustomerName: order.CustomerName,
		Timestamp:    at.UTC(),
	}
}
