package hub

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/neuropose/internal/log"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds what a client may send us
	maxMessageSize = 4 * 1024

	// sendBuffer is how many messages a client may fall behind before it is dropped
	sendBuffer = 256
)

// ErrHubStopped is returned when a client connects after the hub stopped.
var ErrHubStopped = errors.New("hub stopped")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Client represents a single websocket connection
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan Message
	greet func() []Message
}

// NewClient creates a new client and registers it with the hub. greet, if
// not nil, is called by the hub as it admits the client; its messages are
// queued ahead of every broadcast the client receives.
func NewClient(hub *Hub, conn *websocket.Conn, greet func() []Message) (*Client, error) {
	client := &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan Message, sendBuffer),
		greet: greet,
	}

	select {
	case hub.register <- client:
		return client, nil
	case <-hub.done:
		return nil, ErrHubStopped
	}
}

// Run starts the client's read and write pumps.
// It blocks until the connection closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// ServeWS upgrades the request and runs a client until it disconnects.
// greet is passed to NewClient.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, greet func() []Message) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade error", "error", err)
		return
	}

	client, err := NewClient(hub, conn, greet)
	if err != nil {
		conn.Close()
		return
	}
	client.Run()
}

// readPump reads messages from the websocket connection to detect
// disconnection and receive pong responses.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump is the only goroutine that writes to the connection.
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
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			wsType := websocket.TextMessage
			if message.Type == BinaryMessage {
				wsType = websocket.BinaryMessage
			}

			if err := c.conn.WriteMessage(wsType, message.Data); err != nil {
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
