package volume

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrClosed is returned by AsyncController.Raise after Close.
var ErrClosed = errors.New("volume controller closed")

// AsyncController hands raises to a single worker goroutine so slow
// controllers (a mixer process, an MQTT round trip) never hold up the
// caller. The handoff holds one signal: a raise arriving while the previous
// one is still queued replaces it.
type AsyncController struct {
	next Controller
	log  *zap.Logger

	mu      sync.Mutex
	pending chan float64
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup

	replaced atomic.Uint64
	failed   atomic.Uint64
}

// NewAsyncController starts the worker. Call Close to stop it.
func NewAsyncController(next Controller, log *zap.Logger) *AsyncController {
	c := &AsyncController{
		next:    next,
		log:     log,
		pending: make(chan float64, 1),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.work()
	return c
}

// Raise queues the signal and returns immediately.
func (c *AsyncController) Raise(signal float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.pending <- signal:
		return nil
	default:
	}
	select {
	case <-c.pending:
		c.replaced.Add(1)
	default:
	}
	// Only Raise sends, under mu, so the slot is free now.
	c.pending <- signal
	return nil
}

func (c *AsyncController) work() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case signal := <-c.pending:
			if err := c.next.Raise(signal); err != nil {
				c.failed.Add(1)
				c.log.Warn("volume raise failed", zap.Float64("signal", signal), zap.Error(err))
			}
		}
	}
}

// Replaced returns how many queued signals were superseded before the worker
// picked them up.
func (c *AsyncController) Replaced() uint64 { return c.replaced.Load() }

// Failed returns how many forwarded raises returned an error.
func (c *AsyncController) Failed() uint64 { return c.failed.Load() }

// Close stops the worker and waits for an in-flight raise to finish.
// A queued signal that has not started is discarded.
func (c *AsyncController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}
