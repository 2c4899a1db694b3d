// internal/websocket/hub.go
package websocket

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event kinds pushed to observers.
const (
	EventTankReading  = "tank_reading"
	EventMotorStatus  = "motor_status"
	EventSystemStatus = "system_status"
	EventAlert        = "alert"
	EventHistory      = "history"
)

// Message types accepted from device channels.
const (
	DeviceMsgTelemetry   = "telemetry"
	DeviceMsgMotorStatus = "motor_status"
	DeviceMsgHeartbeat   = "heartbeat"
	DeviceMsgAlertReport = "alert_report"
	DeviceMsgCommandAck  = "command_ack"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DeviceMessageHandler processes an inbound frame from a device channel.
type DeviceMessageHandler func(deviceID, msgType string, payload json.RawMessage)

// Hub maintains two disjoint address spaces: device channels keyed by device
// id and an ephemeral set of observer channels. Events fan out to observers
// only; targeted messages go to a single device channel. A second connection
// from the same device id supersedes the first.
type Hub struct {
	observers map[*Client]bool
	devices   map[string]*Client

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// OnDeviceMessage routes inbound device frames by declared type.
	OnDeviceMessage DeviceMessageHandler
	// OnDeviceConnect / OnDeviceDisconnect track channel-based liveness.
	OnDeviceConnect    func(deviceID string)
	OnDeviceDisconnect func(deviceID string)
}

func NewHub() *Hub {
	return &Hub{
		observers:  make(map[*Client]bool),
		devices:    make(map[string]*Client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.observers {
				if !client.TrySend(message) {
					// Slow or gone observer; drop it rather than block the
					// fan-out for everyone else.
					logrus.WithField("remote", client.remoteAddr()).
						Warn("observer send buffer full, dropping client")
					client.closeSend()
					delete(h.observers, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	var superseded *Client
	if client.DeviceID == "" {
		h.observers[client] = true
	} else {
		if prev, ok := h.devices[client.DeviceID]; ok && prev != client {
			superseded = prev
		}
		h.devices[client.DeviceID] = client
	}
	h.mu.Unlock()

	if superseded != nil {
		logrus.WithField("device_id", client.DeviceID).Info("device reconnected, superseding prior channel")
		superseded.closeSend()
	}
	if client.DeviceID != "" && h.OnDeviceConnect != nil {
		h.OnDeviceConnect(client.DeviceID)
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	removedDevice := ""
	if client.DeviceID == "" {
		if _, ok := h.observers[client]; ok {
			delete(h.observers, client)
			client.closeSend()
		}
	} else if current, ok := h.devices[client.DeviceID]; ok && current == client {
		delete(h.devices, client.DeviceID)
		client.closeSend()
		removedDevice = client.DeviceID
	}
	h.mu.Unlock()

	if removedDevice != "" && h.OnDeviceDisconnect != nil {
		h.OnDeviceDisconnect(removedDevice)
	}
}

// RegisterClient hands a new connection to the hub's run loop.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// Broadcast fans out a typed event to all observer channels. Devices never
// receive broadcasts.
func (h *Hub) Broadcast(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("marshal broadcast payload")
		return
	}
	message, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		logrus.WithError(err).Error("marshal broadcast envelope")
		return
	}
	h.broadcast <- message
}

// SendToDevice delivers a typed message to one device channel. Returns false
// when the device has no live channel or its buffer is full, in which case
// the caller hands the message to the command queue instead.
func (h *Hub) SendToDevice(deviceID, msgType string, payload any) bool {
	h.mu.RLock()
	client := h.devices[deviceID]
	h.mu.RUnlock()
	if client == nil {
		return false
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("marshal device payload")
		return false
	}
	message, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return false
	}
	return client.TrySend(message)
}

// DeviceConnected reports whether a device has a live channel.
func (h *Hub) DeviceConnected(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.devices[deviceID]
	return ok
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}
