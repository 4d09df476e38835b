package activity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCaseInsensitive(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"MOUSE", Mouse},
		{"mouse", Mouse},
		{"kEYBOARD", Keyboard},
		{" touch ", Touch},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Lookup(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("GAMEPAD")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownType))
	assert.Contains(t, err.Error(), "GAMEPAD")
}

func TestParseList(t *testing.T) {
	got, err := ParseList("keyboard, MOUSE  keyboard")
	require.NoError(t, err)
	assert.Equal(t, []Type{Keyboard, Mouse}, got)

	empty, err := ParseList("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseList("MOUSE KEYBORD")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEventsReturnsCopy(t *testing.T) {
	ev := Events(Keyboard)
	require.Equal(t, []string{"keypress", "keydown", "keyup"}, ev)
	ev[0] = "mutated"
	assert.Equal(t, "keypress", Events(Keyboard)[0])
}

type recordingSink struct {
	got []Type
}

func (s *recordingSink) RegisterAction(t Type) {
	s.got = append(s.got, t)
}

func TestClassifierForwardsKnownEvents(t *testing.T) {
	sink := &recordingSink{}
	c := NewClassifier(sink)

	for _, ev := range []RawEvent{
		{Type: "keydown"},
		{Type: "click"},
		{Type: "touchstart"},
		{Type: "mousemove", MovementX: 3},
		{Type: "KEYUP"},
	} {
		_, err := c.Handle(ev)
		require.NoError(t, err, ev.Type)
	}

	assert.Equal(t, []Type{Keyboard, Mouse, Touch, Mouse, Keyboard}, sink.got)
}

func TestClassifierFiltersZeroMovement(t *testing.T) {
	sink := &recordingSink{}
	c := NewClassifier(sink)

	_, err := c.Handle(RawEvent{Type: "mousemove"})
	assert.ErrorIs(t, err, ErrFiltered)
	assert.Empty(t, sink.got)

	got, err := c.Handle(RawEvent{Type: "mousemove", MovementY: -1})
	require.NoError(t, err)
	assert.Equal(t, Mouse, got)
}

func TestClassifierOnlyMonitoredTypes(t *testing.T) {
	sink := &recordingSink{}
	c := NewClassifier(sink, Keyboard, Keyboard)

	assert.Equal(t, []Type{Keyboard}, c.Monitored())

	_, err := c.Handle(RawEvent{Type: "click"})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = c.Handle(RawEvent{Type: "keypress"})
	require.NoError(t, err)
	assert.Equal(t, []Type{Keyboard}, sink.got)
}

func TestClassifierUnknownEvent(t *testing.T) {
	c := NewClassifier(nil)
	_, err := c.Classify(RawEvent{Type: "scroll"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestSinkFunc(t *testing.T) {
	var got Type
	c := NewClassifier(SinkFunc(func(t Type) { got = t }))
	_, err := c.Handle(RawEvent{Type: "touchend"})
	require.NoError(t, err)
	assert.Equal(t, Touch, got)
}
