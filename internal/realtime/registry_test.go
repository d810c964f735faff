package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func newFake(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestBroadcastReachesAllAndPrunesFailures(t *testing.T) {
	r := NewRegistry(nil, nil)
	a, b, c := newFake("a"), newFake("b"), newFake("c")
	r.Register(a)
	r.Register(b, 7)
	r.Register(c)
	c.fail = true

	n := r.Broadcast(map[string]string{"type": "ping"})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, a.received())
	assert.Equal(t, 1, b.received())
	assert.True(t, c.closed)
	assert.Equal(t, 2, r.Count())

	c.fail = false
	r.Broadcast(map[string]string{"type": "ping"})
	assert.Equal(t, 0, c.received(), "pruned connection gets nothing")
}

func TestSendToOrderIsScoped(t *testing.T) {
	r := NewRegistry(nil, nil)
	seven, eight := newFake("seven"), newFake("eight")
	r.Register(seven, 7)
	r.Register(eight, 8)

	n := r.SendToOrder(8, map[string]int{"orderId": 8})
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, seven.received())
	assert.Equal(t, 1, eight.received())

	assert.Equal(t, 0, r.SendToOrder(99, "nobody"))
}

func TestSubscribeKeepsExistingMemberships(t *testing.T) {
	r := NewRegistry(nil, nil)
	conn := newFake("x")
	r.Register(conn, 7)
	r.Subscribe(conn, 8)

	assert.Equal(t, 1, r.OrderCount(7))
	assert.Equal(t, 1, r.OrderCount(8))

	stranger := newFake("stranger")
	r.Subscribe(stranger, 8)
	assert.Equal(t, 1, r.OrderCount(8), "unregistered connections cannot subscribe")
}

func TestUnregisterRemovesEveryMembership(t *testing.T) {
	r := NewRegistry(nil, nil)
	conn := newFake("x")
	r.Register(conn, 1, 2)
	r.Subscribe(conn, 3)

	r.Unregister(conn)
	assert.Equal(t, 0, r.Count())
	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, 0, r.OrderCount(id))
	}
	assert.Equal(t, 0, r.Broadcast("x"))
}

func TestNotifyDeliversOncePerConnection(t *testing.T) {
	r := NewRegistry(nil, nil)
	sub, other := newFake("sub"), newFake("other")
	r.Register(sub, 5)
	r.Register(other)

	n := r.Notify(5, map[string]interface{}{"type": "order_ready", "orderId": 5})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, sub.received())
	assert.Equal(t, 1, other.received())
}

func TestConcurrentRegistryUse(t *testing.T) {
	r := NewRegistry(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFake(fmt.Sprintf("c%d", i))
			r.Register(conn, int64(i%3))
			r.Broadcast("hello")
			r.SendToOrder(int64(i%3), "hi")
			r.Unregister(conn)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
}

func TestParseOrderID(t *testing.T) {
	cases := map[string]int64{`12`: 12, `"12"`: 12, ` 1001 `: 1001}
	for raw, want := range cases {
		got, ok := parseOrderID(json.RawMessage(raw))
		assert.True(t, ok, raw)
		assert.Equal(t, want, got)
	}
	for _, raw := range []string{``, `null`, `"abc"`, `-3`, `1.5`} {
		_, ok := parseOrderID(json.RawMessage(raw))
		assert.False(t, ok, raw)
	}
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebsocketSubscribeRoundTrip(t *testing.T) {
	r := NewRegistry(nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = Serve(r, w, req)
	}))
	defer srv.Close()

	conn := dial(t, srv, "/ws/notifications")
	require.Eventually(t, func() bool { return r.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "subscribe", "orderId": "1001"}))
	require.Eventually(t, func() bool { return r.OrderCount(1001) == 1 }, 2*time.Second, 10*time.Millisecond)

	r.SendToOrder(1001, map[string]interface{}{"type": "order_ready", "orderId": 1001})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "order_ready", frame["type"])
	assert.EqualValues(t, 1001, frame["orderId"])

	conn.Close()
	require.Eventually(t, func() bool { return r.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, r.OrderCount(1001))
}
