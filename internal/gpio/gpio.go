// Package gpio reads activity sensor lines (touch pads, buttons, PIR modules)
// and turns debounced active edges into raw activity events.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "strconv"

// Reader reads GPIO input levels.
type Reader interface {
	// Read returns the logical level of every line, in configuration order.
	// true means the line is active (active-low lines are already inverted).
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Line is one sensor input.
type Line struct {
	Name string
	// Pin is the line offset on the chip (BCM numbering on a Raspberry Pi).
	Pin int
	// Event is the raw event reported when the line goes active, e.g. "touchstart".
	Event string
	// ActiveLow lines are pulled up and read active when the raw value is 0.
	ActiveLow bool
}

// Label returns the line name, or "pin N" if it has none.
func (l Line) Label() string {
	if l.Name != "" {
		return l.Name
	}
	return "pin " + strconv.Itoa(l.Pin)
}
