package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"taboon/internal/models"
)

// Routing keys for order events
const (
	KeyOrderCreated = "order.created"
	KeyOrderStatus  = "order.status"
	KeyOrderReady   = "order.ready"
)

// Event is the envelope published for every order change
type Event struct {
	Type       string             `json:"type"`
	OrderID    int64              `json:"orderId"`
	Status     models.OrderStatus `json:"status,omitempty"`
	Previous   models.OrderStatus `json:"previous,omitempty"`
	Order      *models.Order      `json:"order,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// Publisher hands order events to downstream systems
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Config for the RabbitMQ publisher. An empty URL disables publishing.
type Config struct {
	URL            string        `yaml:"url"`
	Exchange       string        `yaml:"exchange"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// RabbitPublisher publishes events to a topic exchange with publisher
// confirms. Publishes are serialized so each confirm matches its message.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string
	timeout  time.Duration
	mu       sync.Mutex
}

// NewPublisher returns a RabbitPublisher when a URL is configured and a
// NopPublisher otherwise
func NewPublisher(cfg Config) (Publisher, error) {
	if cfg.URL == "" {
		return NopPublisher{}, nil
	}
	return DialRabbit(cfg)
}

// DialRabbit connects, declares the exchange and enables confirms
func DialRabbit(cfg Config) (*RabbitPublisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "orders"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	return &RabbitPublisher{
		conn:     conn,
		ch:       ch,
		acks:     ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		exchange: cfg.Exchange,
		timeout:  cfg.PublishTimeout,
	}, nil
}

// Publish sends the event and waits for the broker's ack
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	select {
	case conf := <-p.acks:
		if conf.Ack {
			return nil
		}
		return errors.New("publish NACK from broker")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel and connection
func (p *RabbitPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Created builds the event for a new order
func Created(order *models.Order) Event {
	return Event{
		Type:       KeyOrderCreated,
		OrderID:    order.ID,
		Status:     order.Status,
		Order:      order,
		OccurredAt: time.Now().UTC(),
	}
}

// StatusChanged builds the event for a status update. Transitions into
// ready use their own routing key.
func StatusChanged(order *models.Order, previous models.OrderStatus) Event {
	key := KeyOrderStatus
	if order.Status == models.OrderStatusReady && previous != models.OrderStatusReady {
		key = KeyOrderReady
	}
	return Event{
		Type:       key,
		OrderID:    order.ID,
		Status:     order.Status,
		Previous:   previous,
		OccurredAt: time.Now().UTC(),
	}
}
