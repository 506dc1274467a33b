package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/tilt-volume/internal/ingest"
	"github.com/sweeney/tilt-volume/internal/protocol"
	"github.com/sweeney/tilt-volume/internal/state"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testReading() protocol.SensorReading {
	return protocol.SensorReading{
		Gyroscope:   protocol.Vector3{X: 1, Y: 2, Z: 3},
		Orientation: protocol.Vector3{X: 4, Y: 0.5, Z: 6},
	}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{ListenAddr: ":50000", Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg, nil, nil)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.ListenAddr != ":50000" {
		t.Errorf("Config.ListenAddr: got %q, want :50000", snap.Config.ListenAddr)
	}
	if snap.HaveSensor {
		t.Error("expected HaveSensor=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestSnapshotReadsStoreAndStats(t *testing.T) {
	store := state.NewStore()
	stats := &ingest.Stats{}
	tr := NewTracker(start, Config{}, store, stats)

	store.Update(testReading(), start.Add(time.Second))
	stats.Received.Add(3)
	stats.Dropped.Add(2)

	snap := tr.Snapshot()
	if !snap.HaveSensor {
		t.Fatal("expected HaveSensor=true after update")
	}
	if snap.Sensor.Reading != testReading() {
		t.Errorf("Sensor: got %+v", snap.Sensor.Reading)
	}
	if snap.Counters.Received != 3 || snap.Counters.Dropped != 2 {
		t.Errorf("Counters: got %+v", snap.Counters)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, nil, nil)

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, nil, nil)

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotStale(t *testing.T) {
	cfg := Config{StaleAfterMs: 2000}

	none := Snapshot{Now: start, Config: cfg}
	if !none.Stale() {
		t.Error("no reading yet should be stale")
	}
	if none.Age() != -1 {
		t.Errorf("Age without reading: got %v, want -1", none.Age())
	}

	fresh := Snapshot{
		Sensor:     state.Snapshot{UpdatedAt: start},
		HaveSensor: true,
		Now:        start.Add(1500 * time.Millisecond),
		Config:     cfg,
	}
	if fresh.Stale() {
		t.Error("1.5s old reading should not be stale with 2s window")
	}

	old := fresh
	old.Now = start.Add(3 * time.Second)
	if !old.Stale() {
		t.Error("3s old reading should be stale with 2s window")
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{}, nil, nil)

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	store := state.NewStore()
	tr := NewTracker(time.Now(), Config{}, store, nil)
	store.Update(testReading(), time.Now())

	snap1 := tr.Snapshot()

	next := testReading()
	next.Orientation.Y = 0.9
	store.Update(next, time.Now())

	if snap1.Sensor.Reading.Orientation.Y != 0.5 {
		t.Error("snapshot should be a copy; reading was modified")
	}
}

func testStatusSnapshot() Snapshot {
	return Snapshot{
		Sensor: state.Snapshot{
			Reading:   testReading(),
			UpdatedAt: start.Add(15*time.Minute - 250*time.Millisecond),
			Sequence:  7,
		},
		HaveSensor:    true,
		Counters:      ingest.Counters{Received: 10, Decoded: 7, Dropped: 3, RaiseRequests: 2, LastPeer: "192.168.1.50:40000"},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{ListenAddr: ":50000", Broker: "tcp://localhost:1883", VolumeMode: "log", StaleAfterMs: 2000},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testStatusSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if !parsed.Status.Ready {
		t.Error("expected Ready=true")
	}
	if parsed.Status.Stale {
		t.Error("expected Stale=false")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Sensor == nil {
		t.Fatal("expected sensor block")
	}
	if parsed.Status.Sensor.Orientation.Y != 0.5 {
		t.Errorf("Sensor.Orientation.Y: got %v, want 0.5", parsed.Status.Sensor.Orientation.Y)
	}
	if parsed.Status.Sensor.AgeMs != 250 {
		t.Errorf("Sensor.AgeMs: got %d, want 250", parsed.Status.Sensor.AgeMs)
	}
	if parsed.Status.Counts.Dropped != 3 {
		t.Errorf("Counts.Dropped: got %d, want 3", parsed.Status.Counts.Dropped)
	}
	if parsed.Status.Counts.LastPeer != "192.168.1.50:40000" {
		t.Errorf("Counts.LastPeer: got %q", parsed.Status.Counts.LastPeer)
	}
	if parsed.Status.Config.VolumeMode != "log" {
		t.Errorf("Config.VolumeMode: got %q, want log", parsed.Status.Config.VolumeMode)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONNoSensorYet(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
		Config:    Config{StaleAfterMs: 2000},
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	if _, exists := status["sensor"]; exists {
		t.Error("sensor should be omitted before the first reading")
	}
	if status["ready"] != false {
		t.Errorf("ready: got %v, want false", status["ready"])
	}
	if status["stale"] != true {
		t.Errorf("stale: got %v, want true", status["stale"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testStatusSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Counts.RaiseRequests != 2 {
		t.Errorf("Counts.RaiseRequests: got %d, want 2", parsed.Status.Counts.RaiseRequests)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testStatusSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testStatusSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := state.NewStore()
	stats := &ingest.Stats{}
	tr := NewTracker(time.Now(), Config{}, store, stats)
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			store.Update(testReading(), time.Now())
			stats.Received.Add(1)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
