// Package presence tracks a subject's presence as a timer-ordered sequence of
// states, from most active to most idle.
//
// Idle thresholds move the subject forward one state at a time; classified
// activity rewinds it. This package has NO I/O dependencies: time is injected
// through clock.Clock and notifications are delivered through a Dispatcher.
package presence

import (
	"time"

	"github.com/sweeney/presenced/internal/activity"
)

// Definition describes one presence tier before ordering.
type Definition struct {
	// Name is the unique key of the state.
	Name string
	// Enter is the inactivity after which the state auto-activates.
	Enter time.Duration
	// Initial marks the state entered by Init and Start.
	Initial bool
	// Accept lists the activity types that keep the subject in this state.
	// Every other type demotes to the next state.
	Accept []activity.Type
	// Text is an opaque label for consumers (e.g. "Are you there?").
	Text string
}

// State is a presence tier after ordering. Values returned by the engine are
// snapshots; they do not change after being handed out.
type State struct {
	ID      int
	Name    string
	Enter   time.Duration
	Initial bool
	Accept  []activity.Type
	Text    string

	Active      bool
	EnteredOn   time.Time
	LeftOn      time.Time
	EnteredFrom string // empty for the very first transition
}

func (s *State) snapshot() State {
	c := *s
	c.Accept = append([]activity.Type(nil), s.Accept...)
	return c
}

// Transition is a state change as published to consumers outside the process.
type Transition struct {
	Timestamp time.Time
	ID        int
	State     string
	From      string
	Text      string
}

// TransitionOf describes the entry into s.
func TransitionOf(s State) Transition {
	return Transition{
		Timestamp: s.EnteredOn,
		ID:        s.ID,
		State:     s.Name,
		From:      s.EnteredFrom,
		Text:      s.Text,
	}
}
