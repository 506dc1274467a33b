// Package volume provides the audio-volume collaborator driven by the
// listener, with implementations for testing, logging, shelling out to a
// mixer, publishing over MQTT, gating on a hardware switch and rate limiting.
package volume

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Controller raises the system volume.
type Controller interface {
	// Raise is called synchronously from the listener for every update with
	// a strictly positive delta. It must return quickly; wrap slow
	// implementations in an AsyncController. A returned error is logged by
	// the caller and never stops ingestion.
	Raise(signal float64) error
}

// Clamp limits v to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// LogController only logs raise requests. Used when no endpoint is configured.
type LogController struct {
	log *zap.Logger
}

// NewLogController creates a LogController.
func NewLogController(log *zap.Logger) *LogController {
	return &LogController{log: log}
}

// Raise logs the signal.
func (c *LogController) Raise(signal float64) error {
	c.log.Info("volume raise", zap.Float64("signal", signal))
	return nil
}

// RateLimitedController drops raises that arrive within MinInterval of the
// last forwarded one.
type RateLimitedController struct {
	next        Controller
	minInterval time.Duration
	now         func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewRateLimitedController wraps next. A zero interval forwards everything.
func NewRateLimitedController(next Controller, minInterval time.Duration, now func() time.Time) *RateLimitedController {
	if now == nil {
		now = time.Now
	}
	return &RateLimitedController{next: next, minInterval: minInterval, now: now}
}

// Raise forwards to the wrapped controller unless rate limited.
func (c *RateLimitedController) Raise(signal float64) error {
	t := c.now()

	c.mu.Lock()
	if c.minInterval > 0 && !c.last.IsZero() && t.Sub(c.last) < c.minInterval {
		c.mu.Unlock()
		return nil
	}
	c.last = t
	c.mu.Unlock()

	return c.next.Raise(signal)
}
