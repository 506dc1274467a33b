// Package status provides a thread-safe status tracker for the tilt-volume daemon.
// It is read by HTTP handlers and by the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tilt-volume/internal/ingest"
	"github.com/sweeney/tilt-volume/internal/state"
)

// NetworkInfo contains network state as written by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ListenAddr   string
	HTTPAddr     string
	Broker       string
	VolumeMode   string
	HeartbeatMs  int64
	StaleAfterMs int64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Sensor        state.Snapshot
	HaveSensor    bool
	Counters      ingest.Counters
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Age returns how long ago the last reading arrived, or -1 if none has.
func (s Snapshot) Age() time.Duration {
	if !s.HaveSensor {
		return -1
	}
	return s.Now.Sub(s.Sensor.UpdatedAt)
}

// Stale reports whether no reading arrived within the configured window.
func (s Snapshot) Stale() bool {
	if !s.HaveSensor {
		return true
	}
	return s.Age() > time.Duration(s.Config.StaleAfterMs)*time.Millisecond
}

// SensorSource is the sensor store as seen by the tracker.
type SensorSource interface {
	Read() (state.Snapshot, bool)
}

// Tracker holds mutable daemon state behind an RWMutex and reads the sensor
// store and listener counters on every Snapshot.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	store SensorSource
	stats *ingest.Stats
	now   func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// store and stats may be nil.
func NewTracker(startTime time.Time, cfg Config, store SensorSource, stats *ingest.Stats) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		store: store,
		stats: stats,
		now:   time.Now,
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()

	if t.store != nil {
		s.Sensor, s.HaveSensor = t.store.Read()
	}
	if t.stats != nil {
		s.Counters = t.stats.Counters()
	}
	s.Now = t.now()
	return s
}
