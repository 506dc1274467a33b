// Package state holds the latest decoded sensor reading behind a mutex.
// The listener is the only writer; display sinks read or subscribe.
package state

import (
	"sync"
	"time"

	"github.com/sweeney/tilt-volume/internal/protocol"
)

// Snapshot is a point-in-time view of the sensor state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Reading   protocol.SensorReading
	UpdatedAt time.Time
	Sequence  uint64 // number of successful updates, starting at 1
}

// Store owns all mutable sensor state.
type Store struct {
	mu          sync.RWMutex
	latest      Snapshot
	have        bool
	previousY   float64
	subscribers map[int]chan Snapshot
	nextSubID   int
}

// NewStore creates an empty Store. The previous orientation-y starts at 0.
func NewStore() *Store {
	return &Store{subscribers: make(map[int]chan Snapshot)}
}

// Update records a reading and returns the delta between its orientation-y
// and the orientation-y of the previous update. Reading the previous value,
// computing the delta and storing the new reading happen under one lock.
func (s *Store) Update(r protocol.SensorReading, at time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := r.Orientation.Y - s.previousY
	s.previousY = r.Orientation.Y
	s.latest = Snapshot{
		Reading:   r,
		UpdatedAt: at,
		Sequence:  s.latest.Sequence + 1,
	}
	s.have = true

	for _, ch := range s.subscribers {
		publishLatest(ch, s.latest)
	}
	return delta
}

// publishLatest delivers snap without blocking. A full channel loses its
// oldest queued snapshot so the newest always lands. Only Update sends, under
// the write lock, so the second send cannot find the channel full again.
func publishLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Read returns the latest snapshot. The bool is false until the first update.
func (s *Store) Read() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.have
}

// PreviousOrientationY returns the orientation-y the next delta is computed against.
func (s *Store) PreviousOrientationY() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.previousY
}

// Subscribe returns a channel that receives every snapshot stored after the
// call, and a function to cancel the subscription. Delivery never blocks
// Update: if the channel buffer is full the oldest queued snapshot is dropped
// to make room, so a slow subscriber always ends on the latest one.
func (s *Store) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
