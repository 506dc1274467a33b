// Package gpio reads the volume arm switch with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the arm switch.
type Reader interface {
	// Read returns true when volume control is armed.
	// The raw GPIO value is inverted: the switch pulls the line low when ON.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"
