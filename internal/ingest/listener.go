// Package ingest owns the UDP socket. It decodes each datagram, applies it to
// the state store, and raises the volume on a positive orientation-y delta.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tilt-volume/internal/protocol"
	"github.com/sweeney/tilt-volume/internal/state"
	"github.com/sweeney/tilt-volume/internal/volume"
)

// MaxDatagramSize is the receive buffer size. Longer datagrams are truncated
// by the read and then decoded as-is.
const MaxDatagramSize = 1024

// DefaultPort is the UDP port the handheld sends to.
const DefaultPort = 50000

// ReceiveErrorPause is how long the loop waits after a receive error.
const ReceiveErrorPause = 50 * time.Millisecond

// ErrBind is wrapped by Bind when the socket cannot be bound.
var ErrBind = errors.New("bind udp socket")

// Addr joins a bind host and port. An empty host binds all interfaces.
func Addr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Bind opens the UDP socket. Failure is fatal for the caller.
func Bind(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBind, addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBind, addr, err)
	}
	return conn, nil
}

// Stats counts what the listener has seen. Safe for concurrent reads.
type Stats struct {
	Received      atomic.Uint64
	Decoded       atomic.Uint64
	Dropped       atomic.Uint64
	Truncated     atomic.Uint64
	ReceiveErrors atomic.Uint64
	// RaiseRequests counts positive deltas handed to the controller,
	// including ones a gate or rate limit later suppresses.
	RaiseRequests atomic.Uint64
	// RaiseErrors counts errors returned synchronously by the controller.
	RaiseErrors atomic.Uint64
	lastPeer    atomic.Value // string
}

// LastPeer returns the address of the most recent sender, or "".
func (s *Stats) LastPeer() string {
	v, _ := s.lastPeer.Load().(string)
	return v
}

// Counters is a plain copy of Stats.
type Counters struct {
	Received      uint64
	Decoded       uint64
	Dropped       uint64
	Truncated     uint64
	ReceiveErrors uint64
	RaiseRequests uint64
	RaiseErrors   uint64
	LastPeer      string
}

// Counters returns a point-in-time copy.
func (s *Stats) Counters() Counters {
	return Counters{
		Received:      s.Received.Load(),
		Decoded:       s.Decoded.Load(),
		Dropped:       s.Dropped.Load(),
		Truncated:     s.Truncated.Load(),
		ReceiveErrors: s.ReceiveErrors.Load(),
		RaiseRequests: s.RaiseRequests.Load(),
		RaiseErrors:   s.RaiseErrors.Load(),
		LastPeer:      s.LastPeer(),
	}
}

// PacketConn is the subset of net.PacketConn the listener needs.
type PacketConn interface {
	ReadFrom(p []byte) (int, net.Addr, error)
	Close() error
}

// Listener runs the ingestion loop on a bound socket.
type Listener struct {
	conn       PacketConn
	store      *state.Store
	controller volume.Controller
	log        *zap.Logger
	now        func() time.Time
	pause      time.Duration
	stats      Stats
}

// Option configures a Listener.
type Option func(*Listener)

// WithClock overrides time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) { l.now = now }
}

// WithReceiveErrorPause overrides ReceiveErrorPause.
func WithReceiveErrorPause(d time.Duration) Option {
	return func(l *Listener) { l.pause = d }
}

// NewListener creates a Listener. The listener takes ownership of conn.
func NewListener(conn PacketConn, store *state.Store, controller volume.Controller, log *zap.Logger, opts ...Option) *Listener {
	l := &Listener{
		conn:       conn,
		store:      store,
		controller: controller,
		log:        log,
		now:        time.Now,
		pause:      ReceiveErrorPause,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Stats returns the listener's counters.
func (l *Listener) Stats() *Stats {
	return &l.stats
}

// Run receives datagrams until ctx is cancelled, then closes the socket and
// returns nil. Per-packet errors never stop the loop.
func (l *Listener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.conn.Close()
	})
	defer func() {
		if stop() {
			l.conn.Close()
		}
	}()

	l.log.Info("udp listener up")

	// One byte over the limit so oversize datagrams can be detected.
	buf := make([]byte, MaxDatagramSize+1)
	for {
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info("udp listener stopped")
				return nil
			}
			l.stats.ReceiveErrors.Add(1)
			l.log.Warn("receive error", zap.Error(err))
			select {
			case <-ctx.Done():
				l.log.Info("udp listener stopped")
				return nil
			case <-time.After(l.pause):
			}
			continue
		}

		l.stats.Received.Add(1)
		if addr != nil {
			l.stats.lastPeer.Store(addr.String())
		}
		if n > MaxDatagramSize {
			n = MaxDatagramSize
			l.stats.Truncated.Add(1)
		}
		l.handle(buf[:n], addr)
	}
}

// handle processes one datagram payload.
func (l *Listener) handle(payload []byte, from net.Addr) {
	reading, err := protocol.Decode(payload)
	if err != nil {
		l.stats.Dropped.Add(1)
		l.log.Debug("dropped datagram", zap.String("peer", addrString(from)), zap.Error(err))
		return
	}
	l.stats.Decoded.Add(1)

	delta := l.store.Update(reading, l.now())
	if delta <= 0 {
		return
	}

	l.stats.RaiseRequests.Add(1)
	if err := l.controller.Raise(volume.Clamp(reading.Orientation.Y)); err != nil {
		l.stats.RaiseErrors.Add(1)
		l.log.Warn("volume raise failed", zap.Float64("delta", delta), zap.Error(err))
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
