// internal/storage/memory.go
package storage

import (
	"sync"

	"tankguard-gateway/internal/data"
)

const maxBufferSize = 100 // keep the last 100 readings for observer snapshots

// RecentReadings is a fixed-size in-memory buffer of the newest readings,
// served to observers on connect so the dashboard has history before the
// first live event arrives.
type RecentReadings struct {
	mu       sync.RWMutex
	buffer   []*data.Reading
	capacity int
}

func NewRecentReadings() *RecentReadings {
	return &RecentReadings{
		buffer:   make([]*data.Reading, 0, maxBufferSize),
		capacity: maxBufferSize,
	}
}

func (s *RecentReadings) Add(r *data.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) >= s.capacity {
		s.buffer = s.buffer[1:]
	}
	s.buffer = append(s.buffer, r)
}

func (s *RecentReadings) GetRecent(count int) []*data.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if count <= 0 || count > len(s.buffer) {
		count = len(s.buffer)
	}
	// Return a copy to avoid races if the caller holds on to the slice.
	result := make([]*data.Reading, count)
	copy(result, s.buffer[len(s.buffer)-count:])
	return result
}

func (s *RecentReadings) GetAll() []*data.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*data.Reading, len(s.buffer))
	copy(result, s.buffer)
	return result
}
