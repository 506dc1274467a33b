package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tilt-volume/internal/protocol"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	Stale         bool         `json:"stale"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Sensor        *SensorJSON  `json:"sensor,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SensorJSON is the JSON representation of the latest reading.
type SensorJSON struct {
	Gyroscope   protocol.Vector3 `json:"gyroscope"`
	Orientation protocol.Vector3 `json:"orientation"`
	Sequence    uint64           `json:"sequence"`
	UpdatedAt   string           `json:"updated_at"`
	AgeMs       int64            `json:"age_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of listener counters.
type CountsJSON struct {
	Received      uint64 `json:"received"`
	Decoded       uint64 `json:"decoded"`
	Dropped       uint64 `json:"dropped"`
	Truncated     uint64 `json:"truncated"`
	ReceiveErrors uint64 `json:"receive_errors"`
	RaiseRequests uint64 `json:"raise_requests"`
	RaiseErrors   uint64 `json:"raise_errors"`
	LastPeer      string `json:"last_peer,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ListenAddr   string `json:"listen_addr"`
	HTTPAddr     string `json:"http_addr"`
	Broker       string `json:"broker"`
	VolumeMode   string `json:"volume_mode"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	StaleAfterMs int64  `json:"stale_after_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Counters
	inner := StatusInner{
		Ready:         snap.HaveSensor,
		Stale:         snap.Stale(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Received:      c.Received,
			Decoded:       c.Decoded,
			Dropped:       c.Dropped,
			Truncated:     c.Truncated,
			ReceiveErrors: c.ReceiveErrors,
			RaiseRequests: c.RaiseRequests,
			RaiseErrors:   c.RaiseErrors,
			LastPeer:      c.LastPeer,
		},
		Config: ConfigJSON{
			ListenAddr:   snap.Config.ListenAddr,
			HTTPAddr:     snap.Config.HTTPAddr,
			Broker:       snap.Config.Broker,
			VolumeMode:   snap.Config.VolumeMode,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			StaleAfterMs: snap.Config.StaleAfterMs,
		},
	}

	if snap.HaveSensor {
		inner.Sensor = &SensorJSON{
			Gyroscope:   snap.Sensor.Reading.Gyroscope,
			Orientation: snap.Sensor.Reading.Orientation,
			Sequence:    snap.Sensor.Sequence,
			UpdatedAt:   snap.Sensor.UpdatedAt.UTC().Format(time.RFC3339Nano),
			AgeMs:       snap.Age().Milliseconds(),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
