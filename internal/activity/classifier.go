package activity

import (
	"fmt"
	"strings"
)

// RawEvent is an input event as reported by a browser, a GPIO line or a
// remote publisher.
type RawEvent struct {
	Type      string  `json:"type"`
	MovementX float64 `json:"movement_x,omitempty"`
	MovementY float64 `json:"movement_y,omitempty"`
}

// Sink receives classified activity.
type Sink interface {
	RegisterAction(t Type)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Type)

// RegisterAction calls f(t).
func (f SinkFunc) RegisterAction(t Type) {
	f(t)
}

// Classifier maps raw events of the monitored types to activity tags and
// forwards them to a Sink.
type Classifier struct {
	sink      Sink
	monitored []Type
	byEvent   map[string]Type
}

// NewClassifier monitors the given types, or all types if none are given.
func NewClassifier(sink Sink, monitor ...Type) *Classifier {
	if len(monitor) == 0 {
		monitor = All()
	}
	c := &Classifier{
		sink:    sink,
		byEvent: make(map[string]Type),
	}
	for _, t := range monitor {
		if Contains(c.monitored, t) {
			continue
		}
		c.monitored = append(c.monitored, t)
		for _, name := range events[t] {
			c.byEvent[name] = t
		}
	}
	return c
}

// Monitored returns the monitored types.
func (c *Classifier) Monitored() []Type {
	return append([]Type(nil), c.monitored...)
}

// Classify returns the activity type of ev without forwarding it.
func (c *Classifier) Classify(ev RawEvent) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(ev.Type))
	t, ok := c.byEvent[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	// Some browsers emit mousemove without any movement (e.g. when a desktop
	// notification appears); that is not the user.
	if name == "mousemove" && ev.MovementX == 0 && ev.MovementY == 0 {
		return "", ErrFiltered
	}
	return t, nil
}

// Handle classifies ev and forwards the result to the sink.
func (c *Classifier) Handle(ev RawEvent) (Type, error) {
	t, err := c.Classify(ev)
	if err != nil {
		return "", err
	}
	if c.sink != nil {
		c.sink.RegisterAction(t)
	}
	return t, nil
}
