// Package mqtt publishes presence transitions and system lifecycle events, and
// receives raw activity events from remote sensors.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/presence"
)

// Topics are the MQTT topics of one subject.
type Topics struct {
	// State carries retained presence transitions.
	State string
	// System carries lifecycle events and the last will.
	System string
	// Activity is subscribed to for raw activity events.
	Activity string
}

// NewTopics returns the topics <prefix>/<subject>/{state,system,activity}.
func NewTopics(prefix, subject string) Topics {
	base := prefix + "/" + subject
	return Topics{
		State:    base + "/state",
		System:   base + "/system",
		Activity: base + "/activity",
	}
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a presence transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(t presence.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ActivityHandler receives raw activity events arriving on the activity topic.
type ActivityHandler func(activity.RawEvent)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload of a presence transition.
type Payload struct {
	Presence PresencePayload `json:"presence"`
}

// PresencePayload contains the transition details.
type PresencePayload struct {
	Timestamp string `json:"timestamp"`
	Subject   string `json:"subject"`
	State     string `json:"state"`
	ID        int    `json:"id"`
	From      string `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// FormatPayload creates the JSON payload for a transition of subject.
func FormatPayload(subject string, t presence.Transition) ([]byte, error) {
	payload := Payload{
		Presence: PresencePayload{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Subject:   subject,
			State:     t.State,
			ID:        t.ID,
			From:      t.From,
			Text:      t.Text,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (last will, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ParseActivity decodes a raw activity event message.
func ParseActivity(payload []byte) (activity.RawEvent, error) {
	var ev activity.RawEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return activity.RawEvent{}, fmt.Errorf("decode activity: %w", err)
	}
	if ev.Type == "" {
		return activity.RawEvent{}, fmt.Errorf("decode activity: missing type")
	}
	return ev, nil
}

// Nop is the Publisher used when no broker is configured. It drops everything
// and never reports a connection.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(presence.Transition) error { return nil }

// PublishSystem does nothing.
func (Nop) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// IsConnected reports false.
func (Nop) IsConnected() bool { return false }
