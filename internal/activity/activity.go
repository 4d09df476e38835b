// Package activity classifies raw input events into the small fixed set of
// activity types the presence engine understands.
package activity

import (
	"errors"
	"fmt"
	"strings"
)

// Type is an activity-type tag.
type Type string

const (
	Mouse    Type = "MOUSE"
	Keyboard Type = "KEYBOARD"
	Touch    Type = "TOUCH"
)

var (
	// ErrUnknownType is returned for a tag that is not MOUSE, KEYBOARD or TOUCH.
	ErrUnknownType = errors.New("unknown activity type")

	// ErrUnknownEvent is returned for a raw event name no monitored type listens to.
	ErrUnknownEvent = errors.New("unknown raw event")

	// ErrFiltered is returned for a raw event that is noise, e.g. a mousemove
	// with zero displacement.
	ErrFiltered = errors.New("event filtered")
)

// Raw event names per type.
var events = map[Type][]string{
	Mouse:    {"click", "mousedown", "mouseup", "mousemove"},
	Keyboard: {"keypress", "keydown", "keyup"},
	Touch:    {"touchstart", "touchmove", "touchend", "touchenter", "touchleave", "touchcancel"},
}

// All returns every known type in a fixed order.
func All() []Type {
	return []Type{Mouse, Keyboard, Touch}
}

// Events returns the raw event names that count as activity of type t.
func Events(t Type) []string {
	return append([]string(nil), events[t]...)
}

// Lookup resolves a type name case-insensitively.
func Lookup(name string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := events[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// ParseList parses a space or comma separated list of type names.
// Duplicates are dropped; an empty string yields an empty list.
func ParseList(s string) ([]Type, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	var out []Type
	seen := make(map[Type]bool, len(fields))
	for _, f := range fields {
		t, err := Lookup(f)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// Contains reports whether list includes t.
func Contains(list []Type, t Type) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
