package internal

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tilt-volume/internal/gpio"
	"github.com/sweeney/tilt-volume/internal/ingest"
	"github.com/sweeney/tilt-volume/internal/mqtt"
	"github.com/sweeney/tilt-volume/internal/state"
	"github.com/sweeney/tilt-volume/internal/status"
	"github.com/sweeney/tilt-volume/internal/volume"
	"github.com/sweeney/tilt-volume/internal/web"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestIntegrationFullFlow drives real UDP datagrams through the listener into
// a gated MQTT volume controller and reads the result back over HTTP.
func TestIntegrationFullFlow(t *testing.T) {
	conn, err := ingest.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	store := state.NewStore()
	publisher := mqtt.NewFakePublisher()
	armSwitch := gpio.NewFakeReader(true, false, true)
	ctrl := volume.NewGatedController(volume.NewMQTTController(publisher, nil), armSwitch)
	listener := ingest.NewListener(conn, store, ctrl, zap.NewNop())

	tracker := status.NewTracker(time.Now(), status.Config{StaleAfterMs: 60000}, store, listener.Stats())
	srv := web.New("127.0.0.1:0", tracker, store, zap.NewNop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("listener: %v", err)
		}
		srv.Shutdown(context.Background())
	}()

	client, err := net.Dial("udp", conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	// y: 0.1 (up, armed), 0.3 (up, disarmed), 0.2 (down), garbage, 0.6 (up, armed)
	for _, payload := range []string{
		"G,0,0,0?R,0,0.1,0",
		"G,0,0,0?R,0,0.3,0",
		"G,0,0,0?R,0,0.2,0",
		"G,0,0,0?R,0,zero,0",
		"G,0.5,0,0?R,0,0.6,0",
	} {
		if _, err := client.Write([]byte(payload)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	waitFor(t, "all datagrams", func() bool {
		return listener.Stats().Counters().Received == 5
	})
	waitFor(t, "last reading", func() bool {
		snap, ok := store.Read()
		return ok && snap.Reading.Orientation.Y == 0.6
	})
	waitFor(t, "volume commands", func() bool {
		return len(publisher.VolumeCommands()) == 2
	})

	c := listener.Stats().Counters()
	if c.Decoded != 4 || c.Dropped != 1 {
		t.Errorf("counters: decoded=%d dropped=%d, want 4/1", c.Decoded, c.Dropped)
	}
	if c.RaiseRequests != 3 {
		t.Errorf("raise requests: got %d, want 3", c.RaiseRequests)
	}

	volumes := publisher.VolumeCommands()
	if volumes[0].Signal != 0.1 || volumes[1].Signal != 0.6 {
		t.Errorf("signals: got %v, %v", volumes[0].Signal, volumes[1].Signal)
	}

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/snapshot")
	if err != nil {
		t.Fatalf("GET /api/snapshot: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	var snap web.SnapshotJSON
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Orientation.Y != 0.6 || snap.Gyroscope.X != 0.5 {
		t.Errorf("snapshot: got %+v", snap)
	}
	if snap.Sequence != 4 {
		t.Errorf("sequence: got %d, want 4", snap.Sequence)
	}
}

// TestIntegrationNoRaiseWithoutTiltUp verifies a falling or flat stream never
// reaches the controller after the first reading.
func TestIntegrationNoRaiseWithoutTiltUp(t *testing.T) {
	conn, err := ingest.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}

	store := state.NewStore()
	ctrl := volume.NewFakeController()
	listener := ingest.NewListener(conn, store, ctrl, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	client, err := net.Dial("udp", conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	for _, payload := range []string{
		"G,0,0,0?R,0,-0.1,0",
		"G,0,0,0?R,0,-0.1,0",
		"G,0,0,0?R,0,-0.4,0",
	} {
		client.Write([]byte(payload))
	}
	waitFor(t, "all datagrams", func() bool {
		return listener.Stats().Counters().Decoded == 3
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("listener: %v", err)
	}

	if calls := ctrl.Calls(); len(calls) != 0 {
		t.Errorf("expected no raises, got %v", calls)
	}
}
