package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

var (
	// ErrClosed is returned when sending to a connection that is gone
	ErrClosed = errors.New("connection closed")
	// ErrBufferFull is returned when a slow subscriber cannot keep up
	ErrBufferFull = errors.New("send buffer full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // customer and staff pages may be served from another origin
	},
}

// Client is one websocket subscriber. Frames are queued on send and
// written in order by a single writer goroutine.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// ID implements Conn
func (c *Client) ID() string { return c.id }

// Send implements Conn without blocking
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops the writer; it is safe to call more than once
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Serve upgrades the request and registers the connection globally and
// for every listed order. It returns once the pumps are running.
func Serve(registry *Registry, w http.ResponseWriter, r *http.Request, orderIDs ...int64) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		registry: registry,
		logger:   registry.logger,
	}
	registry.Register(client, orderIDs...)

	go client.writePump()
	go client.readPump()
	return nil
}

// subscribeFrame is the only inbound control message
type subscribeFrame struct {
	Type    string          `json:"type"`
	OrderID json.RawMessage `json:"orderId"`
}

// parseOrderID accepts 42 as well as "42"
func parseOrderID(raw json.RawMessage) (int64, bool) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (c *Client) handleMessage(message []byte) {
	var frame subscribeFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Debug("ignoring malformed frame", "conn", c.id, "error", err)
		return
	}
	if frame.Type != "subscribe" {
		return
	}
	if id, ok := parseOrderID(frame.OrderID); ok {
		c.registry.Subscribe(c, id)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.registry.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Info("websocket closed", "conn", c.id, "error", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
