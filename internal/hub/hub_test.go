package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T, greet func(h *Hub) []Message) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h := New("test")
	go h.Run(ctx)

	var g func() []Message
	if greet != nil {
		g = func() []Message { return greet(h) }
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r, g)
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Broadcast(t *testing.T) {
	h, srv, _ := startHub(t, nil)

	a := dial(t, srv)
	b := dial(t, srv)
	waitForClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]string{"action": "punch"}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		typ, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %s read: %v", name, err)
		}
		if typ != websocket.TextMessage {
			t.Errorf("client %s message type = %d, want text", name, typ)
		}
		if string(data) != `{"action":"punch"}` {
			t.Errorf("client %s got %s", name, data)
		}
	}
}

func TestHub_BinaryMessage(t *testing.T) {
	h, srv, _ := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	h.BroadcastBinary([]byte{0xff, 0xd8})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.BinaryMessage || len(data) != 2 {
		t.Errorf("got type %d len %d, want binary len 2", typ, len(data))
	}
}

func TestHub_Greeting(t *testing.T) {
	_, srv, _ := startHub(t, func(*Hub) []Message {
		return []Message{NewJSONMessage([]byte(`{"hello":true}`))}
	})
	conn := dial(t, srv)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"hello":true}` {
		t.Errorf("first message = %s", data)
	}
}

func TestHub_GreetingPrecedesBroadcast(t *testing.T) {
	var version atomic.Int64
	h, srv, _ := startHub(t, func(*Hub) []Message {
		return []Message{NewJSONMessage([]byte(fmt.Sprintf(`{"v":%d}`, version.Load())))}
	})
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	version.Store(1)
	if err := h.BroadcastJSON(map[string]int64{"v": 1}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}

	for _, want := range []string{`{"v":0}`, `{"v":1}`} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != want {
			t.Errorf("message = %s, want %s", data, want)
		}
	}
}

func TestHub_Disconnect(t *testing.T) {
	h, srv, _ := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	conn.Close()
	waitForClients(t, h, 0)
}

func TestHub_StopClosesClients(t *testing.T) {
	h, srv, cancel := startHub(t, nil)
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	cancel()
	<-h.Done()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close when the hub stops")
	}

	if _, err := NewClient(h, nil, nil); err != ErrHubStopped {
		t.Errorf("NewClient() after stop error = %v, want ErrHubStopped", err)
	}
}
