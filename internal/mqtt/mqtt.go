// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tilt-volume/internal/protocol"
	"github.com/sweeney/tilt-volume/internal/state"
)

// TopicSnapshot is the MQTT topic for sensor snapshots.
const TopicSnapshot = "tilt-volume/sensor/snapshot"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "tilt-volume/system"

// TopicVolume is the MQTT topic for volume raise commands.
const TopicVolume = "tilt-volume/volume/raise"

// Publisher publishes sensor data and lifecycle events to MQTT.
type Publisher interface {
	// PublishSnapshot sends a sensor snapshot to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishSnapshot(snap state.Snapshot) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishVolume sends a volume raise command to the broker.
	PublishVolume(signal float64, at time.Time) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SnapshotPayload represents the MQTT message payload for a sensor snapshot.
type SnapshotPayload struct {
	Sensor SensorPayload `json:"sensor"`
}

// SensorPayload contains the snapshot details.
type SensorPayload struct {
	Timestamp   string           `json:"timestamp"`
	Sequence    uint64           `json:"sequence"`
	Gyroscope   protocol.Vector3 `json:"gyroscope"`
	Orientation protocol.Vector3 `json:"orientation"`
}

// FormatSnapshotPayload creates the JSON payload for a sensor snapshot.
func FormatSnapshotPayload(snap state.Snapshot) ([]byte, error) {
	payload := SnapshotPayload{
		Sensor: SensorPayload{
			Timestamp:   snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
			Sequence:    snap.Sequence,
			Gyroscope:   snap.Reading.Gyroscope,
			Orientation: snap.Reading.Orientation,
		},
	}
	return json.Marshal(payload)
}

// VolumePayload represents the MQTT message payload for a volume command.
type VolumePayload struct {
	Volume VolumePayloadInner `json:"volume"`
}

// VolumePayloadInner contains the volume command details.
type VolumePayloadInner struct {
	Timestamp string  `json:"timestamp"`
	Signal    float64 `json:"signal"`
}

// FormatVolumePayload creates the JSON payload for a volume raise command.
func FormatVolumePayload(signal float64, at time.Time) ([]byte, error) {
	return json.Marshal(VolumePayload{
		Volume: VolumePayloadInner{
			Timestamp: at.UTC().Format(time.RFC3339Nano),
			Signal:    signal,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes if the
// connection drops without a clean disconnect. It has no timestamp since it
// is registered at connect time.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{Event: "OFFLINE", Reason: "CONNECTION_LOST"},
	})
	return data
}
