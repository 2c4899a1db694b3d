// internal/decision/cooldown.go
package decision

import (
	"sync"
	"time"
)

// CooldownTracker suppresses re-emitting the same command to the same device
// within a short window. State lives here, outside the pure Decide function,
// so the engine itself stays trivially testable.
type CooldownTracker struct {
	window time.Duration
	mu     sync.Mutex
	last   map[string]lastEmit
}

type lastEmit struct {
	action Action
	at     time.Time
}

func NewCooldownTracker(window time.Duration) *CooldownTracker {
	return &CooldownTracker{
		window: window,
		last:   map[string]lastEmit{},
	}
}

// Allow reports whether a command with the given action may be emitted for
// the device now, and records the emission if so. Maintain never emits and
// never updates state.
func (t *CooldownTracker) Allow(deviceID string, action Action, now time.Time) bool {
	if action == Maintain {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.last[deviceID]; ok {
		if prev.action == action && now.Sub(prev.at) < t.window {
			return false
		}
	}
	t.last[deviceID] = lastEmit{action: action, at: now}
	return true
}

// Forget drops tracking state for a device, e.g. on deactivation.
func (t *CooldownTracker) Forget(deviceID string) {
	t.mu.Lock()
	delete(t.last, deviceID)
	t.mu.Unlock()
}
