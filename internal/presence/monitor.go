// internal/presence/monitor.go
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tankguard-gateway/internal/storage"
	"tankguard-gateway/internal/websocket"
)

// Status is the system_status event payload.
type Status struct {
	DeviceID string    `json:"device_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// Monitor tracks device liveness independent of message traffic. Any
// authenticated contact restores a device to online; silence past the
// timeout flips it offline and notifies observers.
type Monitor struct {
	store        *storage.Store
	hub          *websocket.Hub
	interval     time.Duration
	offlineAfter time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
	online   map[string]bool
}

func NewMonitor(store *storage.Store, hub *websocket.Hub, interval, offlineAfter time.Duration) *Monitor {
	return &Monitor{
		store:        store,
		hub:          hub,
		interval:     interval,
		offlineAfter: offlineAfter,
		lastSeen:     map[string]time.Time{},
		online:       map[string]bool{},
	}
}

// Touch records verified contact from a device, flipping it online if it was
// offline and announcing the change.
func (m *Monitor) Touch(ctx context.Context, deviceID string) {
	now := time.Now().UTC()

	m.mu.Lock()
	m.lastSeen[deviceID] = now
	wasOnline := m.online[deviceID]
	m.online[deviceID] = true
	m.mu.Unlock()

	if err := m.store.TouchDevice(ctx, deviceID, now); err != nil {
		logrus.WithError(err).WithField("device_id", deviceID).Warn("touch persist failed")
	}

	if !wasOnline {
		logrus.WithField("device_id", deviceID).Info("device online")
		m.hub.Broadcast(websocket.EventSystemStatus, Status{DeviceID: deviceID, Online: true, LastSeen: now})
	}
}

// MarkOffline flips a device offline immediately, e.g. when its channel
// closes, without waiting for the scan interval.
func (m *Monitor) MarkOffline(ctx context.Context, deviceID string) {
	m.mu.Lock()
	wasOnline := m.online[deviceID]
	m.online[deviceID] = false
	last := m.lastSeen[deviceID]
	m.mu.Unlock()

	if !wasOnline {
		return
	}
	if err := m.store.SetDeviceOnline(ctx, deviceID, false); err != nil {
		logrus.WithError(err).WithField("device_id", deviceID).Warn("offline persist failed")
	}
	logrus.WithField("device_id", deviceID).Warn("device offline")
	m.hub.Broadcast(websocket.EventSystemStatus, Status{DeviceID: deviceID, Online: false, LastSeen: last})
}

// Run scans on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.seed(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

// seed loads known devices so nodes that were online before a restart are
// still watched.
func (m *Monitor) seed(ctx context.Context) {
	devices, err := m.store.ListDevices(ctx)
	if err != nil {
		logrus.WithError(err).Warn("presence seed failed")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range devices {
		if !d.Active {
			continue
		}
		if _, ok := m.lastSeen[d.ID]; !ok {
			m.lastSeen[d.ID] = d.LastSeen
			m.online[d.ID] = d.Online
		}
	}
}

func (m *Monitor) scan(ctx context.Context) {
	now := time.Now().UTC()

	var stale []Status
	m.mu.Lock()
	for id, seen := range m.lastSeen {
		if m.online[id] && now.Sub(seen) > m.offlineAfter {
			m.online[id] = false
			stale = append(stale, Status{DeviceID: id, Online: false, LastSeen: seen})
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		if err := m.store.SetDeviceOnline(ctx, s.DeviceID, false); err != nil {
			logrus.WithError(err).WithField("device_id", s.DeviceID).Warn("offline persist failed")
		}
		logrus.WithFields(logrus.Fields{
			"device_id": s.DeviceID,
			"last_seen": s.LastSeen,
		}).Warn("device missed heartbeats, marking offline")
		m.hub.Broadcast(websocket.EventSystemStatus, s)
	}
}
