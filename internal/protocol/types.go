// Package protocol decodes the line-oriented sensor datagrams sent by the
// handheld device.
// This package has NO external dependencies (no sockets, no clocks, no state).
package protocol

import (
	"errors"
	"fmt"
)

// Tags understood by the decoder. Any other tag is ignored.
const (
	TagGyroscope   = "G"
	TagOrientation = "R"
)

// Vector3 is a three-axis sensor value.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// SensorReading is one fully decoded datagram.
// It is a value type and never shares memory with the input buffer.
type SensorReading struct {
	Gyroscope   Vector3 `json:"gyroscope"`
	Orientation Vector3 `json:"orientation"`
}

var (
	// ErrMissingField is returned when G or R is absent or does not carry
	// exactly three values.
	ErrMissingField = errors.New("missing field")

	// ErrMalformedNumber is returned when a value is not a finite float.
	ErrMalformedNumber = errors.New("malformed number")
)

// DecodeError describes why a datagram was rejected.
type DecodeError struct {
	Kind  error  // ErrMissingField or ErrMalformedNumber
	Field string // e.g. "R" or "G.y"
	Value string // offending text, empty for missing fields
}

func (e *DecodeError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("decode %s: %v: %q", e.Field, e.Kind, e.Value)
	}
	return fmt.Sprintf("decode %s: %v", e.Field, e.Kind)
}

// Unwrap lets errors.Is match the Kind sentinel.
func (e *DecodeError) Unwrap() error {
	return e.Kind
}
