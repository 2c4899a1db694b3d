// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.

	// SendBufferSize bounds each connection's outbound queue. A full buffer
	// disconnects the client instead of backpressuring the sender.
	SendBufferSize = 256
)

// Client is a middleman between one websocket connection and the hub.
// DeviceID is empty for observer connections.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	DeviceID string

	// sendMu guards Send against the close/send race: the hub closes the
	// channel on supersede, drop, or unregister while other goroutines may
	// still hold a reference to this client. All sends and the close go
	// through TrySend and closeSend.
	sendMu     sync.Mutex
	sendClosed bool
}

// TrySend queues a message without blocking. Returns false when the client
// is gone or its buffer is full; the message is dropped either way.
func (c *Client) TrySend(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.Send)
	}
}

func (c *Client) remoteAddr() string {
	if c.Conn == nil {
		return "unknown"
	}
	return c.Conn.RemoteAddr().String()
}

// ReadPump pumps messages from the websocket connection into the hub's
// device router. Observer connections are read only to service control
// frames; their payloads are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Debug("websocket read error")
			}
			break
		}

		if c.DeviceID == "" || c.Hub.OnDeviceMessage == nil {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			logrus.WithFields(logrus.Fields{
				"device_id": c.DeviceID,
			}).WithError(err).Warn("malformed device frame")
			continue
		}
		c.Hub.OnDeviceMessage(c.DeviceID, env.Type, env.Payload)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same frame batch.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
