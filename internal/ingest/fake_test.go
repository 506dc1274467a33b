package ingest

import (
	"net"
	"sync"
)

// datagram is one scripted ReadFrom result.
type datagram struct {
	payload []byte
	err     error
}

// fakeConn feeds scripted datagrams to the listener. ReadFrom blocks until a
// datagram is queued or the conn is closed.
type fakeConn struct {
	in     chan datagram
	closed chan struct{}
	once   sync.Once
	peer   net.Addr
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan datagram, 64),
		closed: make(chan struct{}),
		peer:   &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 40000},
	}
}

func (c *fakeConn) send(payload string) {
	c.in <- datagram{payload: []byte(payload)}
}

func (c *fakeConn) fail(err error) {
	c.in <- datagram{err: err}
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case <-c.closed:
		return 0, nil, net.ErrClosed
	case d := <-c.in:
		if d.err != nil {
			return 0, nil, d.err
		}
		return copy(p, d.payload), c.peer, nil
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
