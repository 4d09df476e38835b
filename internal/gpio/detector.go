package gpio

import (
	"time"

	"github.com/sweeney/presenced/internal/activity"
)

type level int8

const (
	levelUnknown level = iota
	levelInactive
	levelActive
)

func levelOf(active bool) level {
	if active {
		return levelActive
	}
	return levelInactive
}

// lineState tracks debounce state for a single line.
type lineState struct {
	stable       level
	pending      level
	pendingSince time.Time
	baselined    bool
}

// Detector debounces line levels and reports inactive-to-active edges as raw
// activity events. Lines must hold a level for the debounce duration before it
// counts. No edges are reported until every line has a baseline, so a sensor
// that is already active at startup does not count as activity.
type Detector struct {
	debounce  time.Duration
	lines     []Line
	states    []lineState
	baselined bool
	edges     []int
}

// NewDetector creates a detector for lines with the given debounce duration.
func NewDetector(lines []Line, debounce time.Duration) *Detector {
	return &Detector{
		debounce: debounce,
		lines:    lines,
		states:   make([]lineState, len(lines)),
		edges:    make([]int, len(lines)),
	}
}

// Process takes one sample of line levels and returns the raw events of the
// lines that became active. Levels beyond the configured lines are ignored.
func (d *Detector) Process(levels []bool, now time.Time) []activity.RawEvent {
	rising := make([]bool, len(d.lines))
	for i := range d.lines {
		if i >= len(levels) {
			break
		}
		rising[i] = d.processLine(&d.states[i], levelOf(levels[i]), now)
	}

	if !d.baselined {
		for i := range d.states {
			if !d.states[i].baselined {
				return nil
			}
		}
		d.baselined = true
		return nil
	}

	var events []activity.RawEvent
	for i, r := range rising {
		if !r {
			continue
		}
		d.edges[i]++
		events = append(events, activity.RawEvent{Type: d.lines[i].Event})
	}
	return events
}

// processLine handles debounce logic for a single line.
// Returns true if the line's stable level changed to active.
func (d *Detector) processLine(ls *lineState, next level, now time.Time) bool {
	if !ls.baselined {
		if ls.pending != next {
			// First sample, or the level moved during baseline: restart.
			ls.pending = next
			ls.pendingSince = now
			return false
		}
		if now.Sub(ls.pendingSince) >= d.debounce {
			ls.stable = next
			ls.baselined = true
			ls.pending = levelUnknown
		}
		return false
	}

	if next == ls.stable {
		ls.pending = levelUnknown
		return false
	}

	if ls.pending != next {
		ls.pending = next
		ls.pendingSince = now
		return false
	}

	if now.Sub(ls.pendingSince) >= d.debounce {
		ls.stable = next
		ls.pending = levelUnknown
		return next == levelActive
	}
	return false
}

// IsBaselined returns whether every line has established a baseline.
func (d *Detector) IsBaselined() bool {
	return d.baselined
}

// Active returns the stable level of every line.
func (d *Detector) Active() []bool {
	out := make([]bool, len(d.states))
	for i, ls := range d.states {
		out[i] = ls.stable == levelActive
	}
	return out
}

// EdgeCounts returns the number of active edges seen per line label.
func (d *Detector) EdgeCounts() map[string]int {
	out := make(map[string]int, len(d.lines))
	for i, l := range d.lines {
		out[l.Label()] = d.edges[i]
	}
	return out
}
