package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

const defaultBaseURL = "http://localhost:5000"

// ApiClient talks to the order broker's staff endpoints
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
}

// NewApiClient creates a client for TABOON_API_URL, or the local default
func NewApiClient() *ApiClient {
	baseURL := os.Getenv("TABOON_API_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &ApiClient{
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		BaseURL: baseURL,
	}
}

// Order mirrors the broker's order record
type Order struct {
	ID                int64              `json:"id"`
	CustomerName      string             `json:"customerName"`
	Phone             string             `json:"phone"`
	Items             string             `json:"items"`
	Total             float64            `json:"total"`
	OrderType         string             `json:"orderType"`
	Location          string             `json:"location"`
	Address           string             `json:"address"`
	CarInfo           string             `json:"carInfo"`
	DeliveryNotes     string             `json:"deliveryNotes"`
	Notes             string             `json:"notes"`
	Status            string             `json:"status"`
	Source            string             `json:"source"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	ReadyNotification *ReadyNotification `json:"readyNotification,omitempty"`
}

// ReadyNotification is stored on an order once it became ready
type ReadyNotification struct {
	Sent      bool      `json:"sent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ManualOrder is a staff-entered order
type ManualOrder struct {
	CustomerName string  `json:"customerName"`
	Items        string  `json:"items"`
	Total        float64 `json:"total"`
	OrderType    string  `json:"orderType,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Address      string  `json:"address,omitempty"`
	CarInfo      string  `json:"carInfo,omitempty"`
}

// Stats is the dashboard aggregate
type Stats struct {
	Total        int            `json:"total"`
	Today        int            `json:"today"`
	TodayRevenue float64        `json:"todayRevenue"`
	ByStatus     map[string]int `json:"byStatus"`
	ByType       map[string]int `json:"byType"`
}

// Health is the broker's liveness report
type Health struct {
	Status        string `json:"status"`
	Server        string `json:"server"`
	Version       string `json:"version"`
	Orders        int    `json:"orders"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Database      string `json:"database"`
}

// APIError carries the broker's error text and HTTP status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API request failed with status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// do sends body as JSON and decodes a 2xx response into out
func (c *ApiClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &failure)
		return &APIError{StatusCode: resp.StatusCode, Message: failure.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// CheckHealth checks if the API is up and running
func (c *ApiClient) CheckHealth() (*Health, error) {
	var health Health
	if err := c.do(http.MethodGet, "/api/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// GetOrders lists the newest orders, optionally of one type
func (c *ApiClient) GetOrders(orderType string) ([]Order, error) {
	path := "/api/orders"
	if orderType != "" {
		path += "?orderType=" + orderType
	}
	var resp struct {
		Orders []Order `json:"orders"`
	}
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// CreateOrder records a staff-entered order
func (c *ApiClient) CreateOrder(order ManualOrder) (*Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.do(http.MethodPost, "/api/orders", order, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// SetStatus moves an order to status
func (c *ApiClient) SetStatus(id int64, status string) (*Order, error) {
	return c.patch(id, map[string]string{"status": status})
}

// SetNotes replaces the staff notes of an order
func (c *ApiClient) SetNotes(id int64, notes string) (*Order, error) {
	return c.patch(id, map[string]string{"notes": notes})
}

func (c *ApiClient) patch(id int64, change map[string]string) (*Order, error) {
	var resp struct {
		Order Order `json:"order"`
	}
	if err := c.do(http.MethodPatch, "/api/orders/"+strconv.FormatInt(id, 10), change, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// DeleteOrder removes an order permanently
func (c *ApiClient) DeleteOrder(id int64) error {
	return c.do(http.MethodDelete, "/api/orders/"+strconv.FormatInt(id, 10), nil, nil)
}

// GetStats fetches the dashboard aggregate
func (c *ApiClient) GetStats() (*Stats, error) {
	var resp struct {
		Stats Stats `json:"stats"`
	}
	if err := c.do(http.MethodGet, "/api/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}
