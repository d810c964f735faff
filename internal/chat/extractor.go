package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"taboon/internal/events"
	"taboon/internal/models"
	"taboon/internal/monitoring"
)

var orderBlock = regexp.MustCompile(`(?s)\[ORDER_DATA\](.*?)\[/ORDER_DATA\]`)

// OrderCreator is the part of the order store extraction needs
type OrderCreator interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, order *models.Order) error
}

// ProfileStore remembers customers by fingerprint
type ProfileStore interface {
	Upsert(ctx context.Context, fingerprint string, patch models.ProfilePatch) (*models.CustomerProfile, error)
}

// Extraction is the outcome of processing one generated reply
type Extraction struct {
	Reply   string
	OrderID *int64
	Order   *models.Order
}

// amount accepts 25, 25.5 or "25"
type amount float64

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("total %q is not a number", s)
		}
		*a = amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = amount(f)
	return nil
}

// itemList accepts a plain string or a list of strings
type itemList string

func (l *itemList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = itemList(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("items must be text or a list of text")
	}
	*l = itemList(strings.Join(parts, "، "))
	return nil
}

// orderBlockData mirrors the JSON the assistant is told to emit. Pointer
// fields distinguish a missing key from an empty value.
type orderBlockData struct {
	Customer      *string   `json:"customer"`
	Phone         *string   `json:"phone"`
	Items         *itemList `json:"items"`
	Total         *amount   `json:"total"`
	OrderType     *string   `json:"orderType"`
	Location      *string   `json:"location"`
	Address       *string   `json:"address"`
	CarInfo       *string   `json:"carInfo"`
	DeliveryNotes *string   `json:"deliveryNotes"`
}

// Extractor turns an [ORDER_DATA] block inside a reply into a stored order
type Extractor struct {
	orders    OrderCreator
	customers ProfileStore
	publisher events.Publisher
	metrics   *monitoring.Metrics
	logger    *slog.Logger
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithEvents publishes order.created for every extracted order
func WithEvents(p events.Publisher) ExtractorOption {
	return func(e *Extractor) { e.publisher = p }
}

// WithExtractorMetrics counts extraction results
func WithExtractorMetrics(m *monitoring.Metrics) ExtractorOption {
	return func(e *Extractor) { e.metrics = m }
}

// NewExtractor creates an extractor. customers may be nil.
func NewExtractor(orders OrderCreator, customers ProfileStore, logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{
		orders:    orders,
		customers: customers,
		publisher: events.NopPublisher{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract looks for an order block in reply. Without a block, or with a
// block that cannot be used, the reply is returned unchanged and no order
// is created. Parse problems are logged, never returned.
func (e *Extractor) Extract(ctx context.Context, reply, fingerprint string) (Extraction, error) {
	match := orderBlock.FindStringSubmatch(reply)
	if match == nil {
		e.metrics.Extraction("none")
		return Extraction{Reply: reply}, nil
	}

	data, err := parseBlock(match[1])
	if err != nil {
		e.metrics.Extraction("invalid")
		e.logger.Warn("discarding order block", "error", err)
		return Extraction{Reply: reply}, nil
	}

	id, err := e.orders.NextID(ctx)
	if err != nil {
		e.metrics.Extraction("failed")
		return Extraction{Reply: reply}, err
	}

	order := data.toOrder(id, fingerprint)
	if err := e.orders.Create(ctx, order); err != nil {
		// the customer still gets the number; staff can re-enter it manually
		e.logger.Error("failed to persist chat order", "order_id", id, "error", err)
	} else {
		e.metrics.OrderCreated(string(order.Source), string(order.OrderType))
		if err := e.publisher.Publish(ctx, events.Created(order)); err != nil {
			e.logger.Warn("failed to publish order event", "order_id", id, "error", err)
		}
	}
	e.metrics.Extraction("created")
	e.logger.Info("chat order created", "order_id", id, "customer", order.CustomerName, "order_type", order.OrderType)

	if fingerprint != "" && e.customers != nil {
		if _, err := e.customers.Upsert(ctx, fingerprint, data.profilePatch()); err != nil {
			e.logger.Warn("failed to remember customer", "fingerprint", fingerprint, "error", err)
		}
	}

	cleaned := strings.TrimSpace(orderBlock.ReplaceAllString(reply, ""))
	return Extraction{
		Reply:   cleaned + models.OrderNumberLine(id),
		OrderID: &id,
		Order:   order,
	}, nil
}

// parseBlock strips code fences, relaxes comments and trailing commas, and
// validates the shape of the block
func parseBlock(raw string) (*orderBlockData, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, &models.ExtractionError{Reason: "is empty"}
	}

	normalized := bytes.TrimSpace(jsonc.ToJSON([]byte(body)))
	if len(normalized) == 0 || normalized[0] != '{' {
		return nil, &models.ExtractionError{Reason: "is not a JSON object"}
	}

	var data orderBlockData
	if err := json.Unmarshal(normalized, &data); err != nil {
		return nil, &models.ExtractionError{Reason: "is not valid JSON", Err: err}
	}

	if data.OrderType != nil && *data.OrderType != "" && !models.OrderType(*data.OrderType).Valid() {
		return nil, &models.ExtractionError{Reason: "has unknown orderType " + strconv.Quote(*data.OrderType)}
	}
	if data.Total != nil && *data.Total < 0 {
		return nil, &models.ExtractionError{Reason: "has a negative total"}
	}
	return &data, nil
}

func valueOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func (d *orderBlockData) toOrder(id int64, fingerprint string) *models.Order {
	orderType := models.OrderTypeDineIn
	if d.OrderType != nil && *d.OrderType != "" {
		orderType = models.OrderType(*d.OrderType)
	}
	var total float64
	if d.Total != nil {
		total = float64(*d.Total)
	}
	var items string
	if d.Items != nil {
		items = string(*d.Items)
	}

	return &models.Order{
		ID:            id,
		CustomerName:  valueOr(d.Customer, models.DefaultCustomerName),
		Phone:         valueOr(d.Phone, ""),
		Items:         items,
		Total:         total,
		OrderType:     orderType,
		Location:      valueOr(d.Location, models.DefaultChatLocation),
		Address:       valueOr(d.Address, ""),
		CarInfo:       valueOr(d.CarInfo, ""),
		DeliveryNotes: valueOr(d.DeliveryNotes, ""),
		Status:        models.OrderStatusNew,
		Source:        models.OrderSourceChat,
		Fingerprint:   fingerprint,
	}
}

// profilePatch carries only the keys the block actually contained
func (d *orderBlockData) profilePatch() models.ProfilePatch {
	patch := models.ProfilePatch{
		Name:     d.Customer,
		Phone:    d.Phone,
		CarInfo:  d.CarInfo,
		Address:  d.Address,
		Location: d.Location,
	}
	if d.OrderType != nil && *d.OrderType != "" {
		ot := models.OrderType(*d.OrderType)
		patch.OrderType = &ot
	}
	return patch
}
