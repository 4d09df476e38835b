//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
	conf  []Line
}

// NewRealReader requests every line of conf as an input on the named chip.
func NewRealReader(chipName string, conf []Line) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	r := &RealReader{chip: chip, conf: conf}
	for _, l := range conf {
		// Bias towards the inactive level so a disconnected sensor reads idle.
		bias := gpiocdev.WithPullDown
		if l.ActiveLow {
			bias = gpiocdev.WithPullUp
		}
		line, err := chip.RequestLine(l.Pin, gpiocdev.AsInput, bias)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s (pin %d): %w", l.Label(), l.Pin, err)
		}
		r.lines = append(r.lines, line)
	}
	return r, nil
}

// Read returns the logical level of every line.
func (r *RealReader) Read() ([]bool, error) {
	out := make([]bool, len(r.lines))
	for i, line := range r.lines {
		raw, err := line.Value()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.conf[i].Label(), err)
		}
		out[i] = (raw != 0) != r.conf[i].ActiveLow
	}
	return out, nil
}

// Close releases GPIO resources.
// Reconfigures lines to input with pull-down (matching Pi boot defaults) before
// closing so external hardware does not hold pins in odd states during boot.
func (r *RealReader) Close() error {
	var errs []error

	for i, line := range r.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", r.conf[i].Label(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.conf[i].Label(), err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
