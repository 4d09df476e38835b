package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/presence"
)

var ts = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func idleTransition() presence.Transition {
	return presence.Transition{
		Timestamp: ts,
		ID:        1,
		State:     "IDLE",
		From:      "ACTIVE",
		Text:      "Are you there?",
	}
}

func TestNewTopics(t *testing.T) {
	topics := NewTopics("presence", "desk")
	if topics.State != "presence/desk/state" {
		t.Errorf("state topic: %s", topics.State)
	}
	if topics.System != "presence/desk/system" {
		t.Errorf("system topic: %s", topics.System)
	}
	if topics.Activity != "presence/desk/activity" {
		t.Errorf("activity topic: %s", topics.Activity)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	payload, err := FormatPayload("desk", idleTransition())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"presence":{"timestamp":"2026-02-10T08:30:00Z","subject":"desk","state":"IDLE","id":1,"from":"ACTIVE","text":"Are you there?"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadFirstTransitionOmitsFrom(t *testing.T) {
	payload, err := FormatPayload("desk", presence.Transition{Timestamp: ts, State: "ACTIVE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := parsed["presence"]["from"]; ok {
		t.Error("first transition should not have a from field")
	}
	if _, ok := parsed["presence"]["text"]; ok {
		t.Error("empty text should be omitted")
	}
	if parsed["presence"]["id"] != float64(0) {
		t.Errorf("id 0 must be present, got %v", parsed["presence"]["id"])
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	tr := idleTransition()
	tr.Timestamp = time.Date(2026, 2, 10, 10, 30, 0, 0, loc)

	payload, _ := FormatPayload("desk", tr)
	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Presence.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Presence.Timestamp)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	tests := []struct {
		event    SystemEvent
		expected string
	}{
		{
			SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"},
			`{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`,
		},
		{
			SystemEvent{Timestamp: ts, Event: "OFFLINE", Reason: "MQTT_DISCONNECT"},
			`{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`,
		},
		{
			SystemEvent{Timestamp: ts, Event: "RECONNECTED"},
			`{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"RECONNECTED"}}`,
		},
	}
	for _, tt := range tests {
		payload, err := FormatSystemPayload(tt.event)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.event.Event, err)
		}
		if string(payload) != tt.expected {
			t.Errorf("%s:\ngot:  %s\nwant: %s", tt.event.Event, payload, tt.expected)
		}
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("expected raw payload, got %s", payload)
	}
}

func TestParseActivity(t *testing.T) {
	ev, err := ParseActivity([]byte(`{"type":"mousemove","movement_x":3,"movement_y":-1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := activity.RawEvent{Type: "mousemove", MovementX: 3, MovementY: -1}
	if ev != want {
		t.Errorf("got %+v, want %+v", ev, want)
	}

	if _, err := ParseActivity([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseActivity([]byte(`{"movement_x":1}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	f.Subject = "desk"

	if err := f.Publish(idleTransition()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Timestamp: ts, Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.States(); len(got) != 1 || got[0] != "IDLE" {
		t.Errorf("unexpected states: %v", got)
	}
	if got := f.SystemEventNames(); len(got) != 1 || got[0] != "HEARTBEAT" {
		t.Errorf("unexpected system events: %v", got)
	}

	var parsed Payload
	if err := json.Unmarshal(f.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Presence.Subject != "desk" {
		t.Errorf("expected subject desk, got %s", parsed.Presence.Subject)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("publish failed")
	f.PublishSystemError = errors.New("system failed")

	if err := f.Publish(idleTransition()); err == nil {
		t.Error("expected publish error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected system publish error")
	}
	if len(f.Transitions) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherResetAndClose(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(idleTransition())
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Connected = true
	f.Close()

	if !f.Closed || !f.IsConnected() {
		t.Fatal("expected closed and connected before reset")
	}

	f.Reset()
	if f.Closed || f.IsConnected() || len(f.Transitions) != 0 || len(f.SystemEvents) != 0 {
		t.Errorf("reset left state behind: %+v", f)
	}
}

func TestFakePublisherDeliver(t *testing.T) {
	f := NewFakePublisher()
	var got []activity.RawEvent
	f.SubscribeActivity(func(ev activity.RawEvent) { got = append(got, ev) })

	if err := f.Deliver([]byte(`{"type":"keydown"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Deliver([]byte(`{}`)); err == nil {
		t.Error("expected error for message without type")
	}
	if len(got) != 1 || got[0].Type != "keydown" {
		t.Errorf("unexpected deliveries: %v", got)
	}
}

func TestFakePublisherConcurrentPublish(t *testing.T) {
	f := NewFakePublisher()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Publish(idleTransition())
			f.PublishSystem(SystemEvent{Event: "HEARTBEAT"})
		}()
	}
	wg.Wait()

	if len(f.States()) != 20 || len(f.SystemEventNames()) != 20 {
		t.Errorf("expected 20 of each, got %d and %d", len(f.States()), len(f.SystemEventNames()))
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(idleTransition()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if (Nop{}).IsConnected() {
		t.Error("Nop should never be connected")
	}
}
