// Package web provides an HTTP status server for the tilt-volume daemon,
// including a websocket feed of live sensor snapshots.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sweeney/tilt-volume/internal/protocol"
	"github.com/sweeney/tilt-volume/internal/state"
	"github.com/sweeney/tilt-volume/internal/status"
)

const (
	wsWriteWait  = 2 * time.Second
	wsPingPeriod = 30 * time.Second
	wsBuffer     = 8
)

// SnapshotJSON is the JSON form of a sensor snapshot on /api/snapshot and /ws.
type SnapshotJSON struct {
	Gyroscope   protocol.Vector3 `json:"gyroscope"`
	Orientation protocol.Vector3 `json:"orientation"`
	Sequence    uint64           `json:"sequence"`
	UpdatedAt   string           `json:"updated_at"`
}

func toJSON(s state.Snapshot) SnapshotJSON {
	return SnapshotJSON{
		Gyroscope:   s.Reading.Gyroscope,
		Orientation: s.Reading.Orientation,
		Sequence:    s.Sequence,
		UpdatedAt:   s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	store      *state.Store
	log        *zap.Logger
	upgrader   websocket.Upgrader

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Server that reads state from the given tracker and store.
func New(addr string, tracker *status.Tracker, store *state.Store, log *zap.Logger) *Server {
	s := &Server{
		tracker: tracker,
		store:   store,
		log:     log,
		done:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and closes websocket feeds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.Read()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toJSON(snap)); err != nil {
		s.log.Warn("json encode error", zap.Error(err))
	}
}

// handleWS streams every new snapshot to the client. The current snapshot,
// if any, is sent first.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error.
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := s.store.Subscribe(wsBuffer)
	defer cancel()

	// Reader: drains control frames and notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if snap, ok := s.store.Read(); ok {
		if err := s.writeSnapshot(conn, snap); err != nil {
			return
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteWait))
			conn.Close()
			<-gone
			return
		case <-gone:
			return
		case snap := <-updates:
			if err := s.writeSnapshot(conn, snap); err != nil {
				conn.Close()
				<-gone
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				conn.Close()
				<-gone
				return
			}
		}
	}
}

// track registers a websocket feed unless the server is shutting down.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) writeSnapshot(conn *websocket.Conn, snap state.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(toJSON(snap))
}
