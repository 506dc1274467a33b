package volume

import (
	"fmt"
	"time"
)

// Switch reports whether volume control is armed.
// gpio.Reader satisfies it.
type Switch interface {
	Read() (bool, error)
}

// GatedController forwards raises only while the switch reads ON.
// A switch read error suppresses the raise.
type GatedController struct {
	next Controller
	sw   Switch
}

// NewGatedController wraps next behind sw.
func NewGatedController(next Controller, sw Switch) *GatedController {
	return &GatedController{next: next, sw: sw}
}

// Raise checks the switch and forwards when armed.
func (c *GatedController) Raise(signal float64) error {
	armed, err := c.sw.Read()
	if err != nil {
		return fmt.Errorf("read arm switch: %w", err)
	}
	if !armed {
		return nil
	}
	return c.next.Raise(signal)
}

// CommandPublisher sends a volume command to a remote audio endpoint.
// mqtt.RealPublisher satisfies it.
type CommandPublisher interface {
	PublishVolume(signal float64, at time.Time) error
}

// MQTTController forwards raises to a remote endpoint over MQTT.
type MQTTController struct {
	pub CommandPublisher
	now func() time.Time
}

// NewMQTTController creates an MQTTController.
func NewMQTTController(pub CommandPublisher, now func() time.Time) *MQTTController {
	if now == nil {
		now = time.Now
	}
	return &MQTTController{pub: pub, now: now}
}

// Raise publishes the signal.
func (c *MQTTController) Raise(signal float64) error {
	if err := c.pub.PublishVolume(signal, c.now()); err != nil {
		return fmt.Errorf("publish volume command: %w", err)
	}
	return nil
}
