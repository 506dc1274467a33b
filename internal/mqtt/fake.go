package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/tilt-volume/internal/state"
)

// VolumeCommand is a recorded PublishVolume call.
type VolumeCommand struct {
	Signal float64
	At     time.Time
}

// FakePublisher records published messages for test assertions.
// Safe for concurrent use; read recorded slices after the publisher is idle.
type FakePublisher struct {
	mu sync.Mutex

	// Snapshots contains all snapshots that were published.
	Snapshots []state.Snapshot

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Volumes contains all volume commands that were published.
	Volumes []VolumeCommand

	// PublishError, if set, will be returned by PublishSnapshot and PublishVolume.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishSnapshot records the snapshot.
func (f *FakePublisher) PublishSnapshot(snap state.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Snapshots = append(f.Snapshots, snap)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// PublishVolume records the volume command.
func (f *FakePublisher) PublishVolume(signal float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Volumes = append(f.Volumes, VolumeCommand{Signal: signal, At: at})
	return nil
}

// SnapshotCount returns how many snapshots were recorded.
func (f *FakePublisher) SnapshotCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Snapshots)
}

// VolumeCommands returns a copy of the recorded volume commands.
func (f *FakePublisher) VolumeCommands() []VolumeCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]VolumeCommand(nil), f.Volumes...)
}

// Events returns the recorded system event names in order.
func (f *FakePublisher) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Snapshots = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Volumes = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
