package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"taboon/internal/monitoring"
)

// Conn is a live subscriber. Send must not block; a returned error marks
// the connection dead and it is removed from every set.
type Conn interface {
	ID() string
	Send(payload []byte) error
	Close()
}

// Registry tracks the global subscriber set and the per-order sets.
// Every operation runs in a single critical section.
type Registry struct {
	mu          sync.Mutex
	global      map[Conn]struct{}
	byOrder     map[int64]map[Conn]struct{}
	memberships map[Conn]map[int64]struct{}

	logger  *slog.Logger
	metrics *monitoring.Metrics
}

// NewRegistry creates an empty registry. metrics may be nil.
func NewRegistry(logger *slog.Logger, metrics *monitoring.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		global:      make(map[Conn]struct{}),
		byOrder:     make(map[int64]map[Conn]struct{}),
		memberships: make(map[Conn]map[int64]struct{}),
		logger:      logger,
		metrics:     metrics,
	}
}

// Register adds conn to the global set and to each listed order set
func (r *Registry) Register(conn Conn, orderIDs ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.global[conn] = struct{}{}
	if _, ok := r.memberships[conn]; !ok {
		r.memberships[conn] = make(map[int64]struct{})
	}
	for _, id := range orderIDs {
		r.subscribeLocked(conn, id)
	}
	r.metrics.SetConnections(len(r.global))
	r.logger.Debug("subscriber registered", "conn", conn.ID(), "orders", orderIDs)
}

// Subscribe adds an already registered conn to one more order set
func (r *Registry) Subscribe(conn Conn, orderID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.global[conn]; !ok {
		return
	}
	r.subscribeLocked(conn, orderID)
	r.logger.Debug("subscriber added order", "conn", conn.ID(), "order_id", orderID)
}

func (r *Registry) subscribeLocked(conn Conn, orderID int64) {
	set, ok := r.byOrder[orderID]
	if !ok {
		set = make(map[Conn]struct{})
		r.byOrder[orderID] = set
	}
	set[conn] = struct{}{}
	r.memberships[conn][orderID] = struct{}{}
}

// Unregister removes conn from the global set and every order set
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn)
	r.metrics.SetConnections(len(r.global))
}

func (r *Registry) removeLocked(conn Conn) {
	delete(r.global, conn)
	for id := range r.memberships[conn] {
		if set, ok := r.byOrder[id]; ok {
			delete(set, conn)
			if len(set) == 0 {
				delete(r.byOrder, id)
			}
		}
	}
	delete(r.memberships, conn)
}

// Broadcast sends payload to every registered connection and returns how
// many received it
func (r *Registry) Broadcast(payload interface{}) int {
	data, ok := r.marshal(payload)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.deliverLocked(keys(r.global), data)
	r.metrics.NotificationsDelivered("global", n)
	return n
}

// SendToOrder sends payload only to connections subscribed to orderID
func (r *Registry) SendToOrder(orderID int64, payload interface{}) int {
	data, ok := r.marshal(payload)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.deliverLocked(keys(r.byOrder[orderID]), data)
	r.metrics.NotificationsDelivered("order", n)
	return n
}

// Notify combines Broadcast and SendToOrder so that a connection that is
// both global and subscribed to orderID receives the frame once
func (r *Registry) Notify(orderID int64, payload interface{}) int {
	data, ok := r.marshal(payload)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	targets := keys(r.global)
	for conn := range r.byOrder[orderID] {
		if _, seen := r.global[conn]; !seen {
			targets = append(targets, conn)
		}
	}
	n := r.deliverLocked(targets, data)
	r.metrics.NotificationsDelivered("global", n)
	return n
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.global)
}

// OrderCount returns the number of connections subscribed to orderID
func (r *Registry) OrderCount(orderID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOrder[orderID])
}

func (r *Registry) deliverLocked(targets []Conn, data []byte) int {
	delivered := 0
	var dead []Conn
	for _, conn := range targets {
		if err := conn.Send(data); err != nil {
			r.logger.Warn("dropping subscriber", "conn", conn.ID(), "error", err)
			dead = append(dead, conn)
			continue
		}
		delivered++
	}
	for _, conn := range dead {
		r.removeLocked(conn)
		conn.Close()
	}
	if len(dead) > 0 {
		r.metrics.SetConnections(len(r.global))
	}
	return delivered
}

func (r *Registry) marshal(payload interface{}) ([]byte, bool) {
	if data, ok := payload.([]byte); ok {
		return data, true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("failed to marshal notification", "error", err)
		return nil, false
	}
	return data, true
}

func keys(set map[Conn]struct{}) []Conn {
	out := make([]Conn, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}
