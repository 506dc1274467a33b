// Package config loads daemon configuration from an optional YAML file.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/tilt-volume/internal/gpio"
)

// Config holds all daemon configuration values.
type Config struct {
	Listen     ListenConfig  `yaml:"listen"`
	HTTP       HTTPConfig    `yaml:"http"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
	Volume     VolumeConfig  `yaml:"volume"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
	StaleAfter time.Duration `yaml:"stale_after"`
	Logging    LoggingConfig `yaml:"logging"`
}

// ListenConfig is the UDP bind address. An empty host binds all interfaces.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HTTPConfig is the status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig is the telemetry broker. An empty Broker disables MQTT.
type MQTTConfig struct {
	Broker          string        `yaml:"broker"`
	ClientID        string        `yaml:"client_id"`
	BufferSize      int           `yaml:"buffer_size"`
	PublishInterval time.Duration `yaml:"publish_interval"` // minimum gap between snapshot messages
}

// VolumeConfig selects and tunes the volume controller.
type VolumeConfig struct {
	// Mode is one of "log", "command", "mqtt".
	Mode        string        `yaml:"mode"`
	Command     []string      `yaml:"command"`
	Timeout     time.Duration `yaml:"timeout"`
	MinInterval time.Duration `yaml:"min_interval"`
	// ArmPin is the BCM pin of the arm switch; negative disables gating.
	ArmPin  int    `yaml:"arm_pin"`
	ArmChip string `yaml:"arm_chip"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// Volume controller modes.
const (
	ModeLog     = "log"
	ModeCommand = "command"
	ModeMQTT    = "mqtt"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:     ListenConfig{Host: "", Port: 50000},
		HTTP:       HTTPConfig{Addr: ":8080"},
		MQTT:       MQTTConfig{BufferSize: 256},
		Volume:     VolumeConfig{Mode: ModeLog, ArmPin: -1, ArmChip: gpio.DefaultChip},
		Heartbeat:  15 * time.Minute,
		StaleAfter: 2 * time.Second,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
// The result is not validated; callers apply overrides first.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	var errs []error

	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	if c.StaleAfter <= 0 {
		errs = append(errs, errors.New("stale_after must be positive"))
	}
	if c.MQTT.PublishInterval < 0 {
		errs = append(errs, errors.New("mqtt.publish_interval must not be negative"))
	}
	if c.Volume.MinInterval < 0 {
		errs = append(errs, errors.New("volume.min_interval must not be negative"))
	}
	switch c.Volume.Mode {
	case ModeLog, ModeCommand:
	case ModeMQTT:
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("volume.mode mqtt requires mqtt.broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("volume.mode %q: want log, command or mqtt", c.Volume.Mode))
	}

	return errors.Join(errs...)
}
