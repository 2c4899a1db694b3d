// internal/commands/queue.go
package commands

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tankguard-gateway/internal/data"
)

// Queue holds undelivered commands per device for nodes that poll instead of
// keeping a live channel. Delivery is at-least-once: a delivered command that
// is not acknowledged within the retry timeout becomes eligible again on the
// next poll. Devices de-duplicate by command id.
type Queue struct {
	retryTimeout time.Duration
	expireAfter  time.Duration
	maxPending   int // 0 = unbounded

	mu     sync.RWMutex
	queues map[string]*deviceQueue

	// OnExpire is invoked outside queue locks for commands that aged out
	// without acknowledgment. Optional.
	OnExpire func(cmd *data.Command)
}

type deviceQueue struct {
	mu   sync.Mutex
	cmds []*data.Command
}

func NewQueue(retryTimeout, expireAfter time.Duration, maxPending int) *Queue {
	return &Queue{
		retryTimeout: retryTimeout,
		expireAfter:  expireAfter,
		maxPending:   maxPending,
		queues:       map[string]*deviceQueue{},
	}
}

func (q *Queue) forDevice(deviceID string) *deviceQueue {
	q.mu.RLock()
	dq, ok := q.queues[deviceID]
	q.mu.RUnlock()
	if ok {
		return dq
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if dq, ok = q.queues[deviceID]; ok {
		return dq
	}
	dq = &deviceQueue{}
	q.queues[deviceID] = dq
	return dq
}

// Enqueue appends a command to the device's pending list. A missing id is
// assigned. When a cap is configured the oldest pending non-critical command
// is dropped first to make room.
func (q *Queue) Enqueue(cmd *data.Command) *data.Command {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	cmd.Status = data.CommandPending
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}

	dq := q.forDevice(cmd.DeviceID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	if q.maxPending > 0 && len(dq.cmds) >= q.maxPending {
		dropped := false
		for i, c := range dq.cmds {
			if c.Status == data.CommandPending && !c.Critical {
				logrus.WithFields(logrus.Fields{
					"device_id":  cmd.DeviceID,
					"command_id": c.ID,
				}).Warn("command queue full, dropping oldest non-critical command")
				dq.cmds = append(dq.cmds[:i], dq.cmds[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			// All pending entries are critical; the cap yields to them.
			logrus.WithField("device_id", cmd.DeviceID).Warn("command queue over cap with only critical commands")
		}
	}

	dq.cmds = append(dq.cmds, cmd)
	return cmd
}

// Poll returns the oldest deliverable command for the device, marking it
// delivered, or nil when none is due. Delivered-but-unacknowledged commands
// past the retry timeout are redelivered; commands past the expiry age are
// dropped and reported via OnExpire.
func (q *Queue) Poll(deviceID string, now time.Time) *data.Command {
	dq := q.forDevice(deviceID)

	var expired []*data.Command
	var out *data.Command

	dq.mu.Lock()
	kept := dq.cmds[:0]
	for _, c := range dq.cmds {
		if q.expireAfter > 0 && now.Sub(c.CreatedAt) > q.expireAfter {
			c.Status = data.CommandExpired
			expired = append(expired, c)
			continue
		}
		kept = append(kept, c)
	}
	dq.cmds = kept

	for _, c := range dq.cmds {
		deliverable := c.Status == data.CommandPending ||
			(c.Status == data.CommandDelivered && now.Sub(c.DeliveredAt) > q.retryTimeout)
		if deliverable {
			c.Status = data.CommandDelivered
			c.DeliveredAt = now
			cp := *c
			out = &cp
			break
		}
	}
	dq.mu.Unlock()

	for _, c := range expired {
		if q.OnExpire != nil {
			q.OnExpire(c)
		}
	}
	return out
}

// Acknowledge marks a command acknowledged and removes it from the queue.
// Unknown or already-acknowledged ids are a no-op, not an error; the second
// return reports whether the ack changed anything.
func (q *Queue) Acknowledge(deviceID, commandID, status string, now time.Time) (*data.Command, bool) {
	dq := q.forDevice(deviceID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	for i, c := range dq.cmds {
		if c.ID != commandID {
			continue
		}
		c.Status = data.CommandAcknowledged
		c.AckedAt = now
		c.AckStatus = status
		dq.cmds = append(dq.cmds[:i], dq.cmds[i+1:]...)
		return c, true
	}
	return nil, false
}

// PendingCount reports how many commands await the device, for the heartbeat
// response's config delta.
func (q *Queue) PendingCount(deviceID string) int {
	dq := q.forDevice(deviceID)
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return len(dq.cmds)
}
