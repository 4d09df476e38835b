package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Subject       string         `json:"subject"`
	State         string         `json:"state"`
	Text          string         `json:"text,omitempty"`
	From          string         `json:"from,omitempty"`
	EnteredOn     string         `json:"entered_on,omitempty"`
	Ready         bool           `json:"ready"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	States        []StateJSON    `json:"states"`
	Transitions   map[string]int `json:"transition_counts"`
	Activity      map[string]int `json:"activity_counts"`
	IgnoredEvents int            `json:"ignored_events"`
	Config        *ConfigJSON    `json:"config,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// StateJSON is the JSON representation of one configured state.
type StateJSON struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	EnterMs int64    `json:"enter_ms"`
	Initial bool     `json:"initial,omitempty"`
	Accept  []string `json:"accept,omitempty"`
	Text    string   `json:"text,omitempty"`
	Active  bool     `json:"active"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Monitor     []string `json:"monitor"`
	PollMs      int64    `json:"poll_ms"`
	DebounceMs  int64    `json:"debounce_ms"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	HTTPAddr    string   `json:"http_addr"`
	GPIOLines   int      `json:"gpio_lines"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Subject:       snap.Config.Subject,
		State:         "UNKNOWN",
		Ready:         snap.Started,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		States:        make([]StateJSON, len(snap.States)),
		Transitions:   snap.Transitions,
		Activity:      make(map[string]int, len(snap.Activity)),
		IgnoredEvents: snap.Ignored,
	}
	if snap.Started {
		inner.State = snap.Current.Name
		inner.Text = snap.Current.Text
		inner.From = snap.Current.EnteredFrom
		inner.EnteredOn = snap.Current.EnteredOn.UTC().Format(time.RFC3339)
	}
	for i, s := range snap.States {
		sj := StateJSON{
			ID:      s.ID,
			Name:    s.Name,
			EnterMs: s.Enter.Milliseconds(),
			Initial: s.Initial,
			Text:    s.Text,
			Active:  snap.Started && s.ID == snap.Current.ID,
		}
		for _, a := range s.Accept {
			sj.Accept = append(sj.Accept, string(a))
		}
		inner.States[i] = sj
	}
	for a, n := range snap.Activity {
		inner.Activity[string(a)] = n
	}
	return inner
}

func buildConfig(snap Snapshot) *ConfigJSON {
	monitor := make([]string, len(snap.Config.Monitor))
	for i, a := range snap.Config.Monitor {
		monitor[i] = string(a)
	}
	return &ConfigJSON{
		Monitor:     monitor,
		PollMs:      snap.Config.PollMs,
		DebounceMs:  snap.Config.DebounceMs,
		HeartbeatMs: snap.Config.HeartbeatMs,
		HTTPAddr:    snap.Config.HTTPAddr,
		GPIOLines:   snap.Config.GPIOLines,
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	inner.Config = buildConfig(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Only STARTUP carries the config.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	if event == "STARTUP" {
		inner.Config = buildConfig(snap)
	}

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
