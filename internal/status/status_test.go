package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/presence"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testStates() []presence.State {
	return []presence.State{
		{ID: 0, Name: "ACTIVE", Text: "I know you're there!"},
		{ID: 1, Name: "IDLE", Enter: time.Minute, Initial: true, Accept: []activity.Type{activity.Keyboard}},
		{ID: 2, Name: "AWAY", Enter: 10 * time.Minute},
	}
}

func entered(id int, from string, at time.Time) presence.State {
	s := testStates()[id]
	s.Active = true
	s.EnteredFrom = from
	s.EnteredOn = at
	return s
}

func TestNewTracker(t *testing.T) {
	cfg := Config{Subject: "desk", PollMs: 100, HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg, testStates())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.Subject != "desk" {
		t.Errorf("Config.Subject: got %q", snap.Config.Subject)
	}
	if snap.Started {
		t.Error("expected Started=false initially")
	}
	if len(snap.States) != 3 || snap.States[1].Name != "IDLE" {
		t.Errorf("unexpected states: %+v", snap.States)
	}
	if snap.TotalTransitions() != 0 {
		t.Errorf("expected no transitions, got %d", snap.TotalTransitions())
	}
}

func TestRecordTransition(t *testing.T) {
	tr := NewTracker(start, Config{}, testStates())

	tr.RecordTransition(entered(0, "", start))
	tr.RecordTransition(entered(1, "ACTIVE", start.Add(time.Minute)))
	tr.RecordTransition(entered(0, "IDLE", start.Add(2*time.Minute)))

	snap := tr.Snapshot()
	if !snap.Started {
		t.Error("expected Started=true")
	}
	if snap.Current.Name != "ACTIVE" || snap.Current.EnteredFrom != "IDLE" {
		t.Errorf("unexpected current: %+v", snap.Current)
	}
	if snap.Transitions["ACTIVE"] != 2 || snap.Transitions["IDLE"] != 1 {
		t.Errorf("unexpected counts: %v", snap.Transitions)
	}
	if snap.TotalTransitions() != 3 {
		t.Errorf("expected 3 transitions, got %d", snap.TotalTransitions())
	}
}

func TestRecordActivityAndIgnored(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	tr.RecordActivity(activity.Keyboard)
	tr.RecordActivity(activity.Keyboard)
	tr.RecordActivity(activity.Touch)
	tr.RecordIgnored()

	snap := tr.Snapshot()
	if snap.Activity[activity.Keyboard] != 2 || snap.Activity[activity.Touch] != 1 {
		t.Errorf("unexpected activity counts: %v", snap.Activity)
	}
	if snap.Ignored != 1 {
		t.Errorf("Ignored: got %d, want 1", snap.Ignored)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{}, testStates())
	tr.RecordActivity(activity.Mouse)

	snap := tr.Snapshot()
	snap.Activity[activity.Mouse] = 99
	snap.Transitions["IDLE"] = 99
	snap.States[0].Name = "CHANGED"

	again := tr.Snapshot()
	if again.Activity[activity.Mouse] != 1 {
		t.Error("mutating snapshot activity leaked into tracker")
	}
	if again.Transitions["IDLE"] != 0 {
		t.Error("mutating snapshot transitions leaked into tracker")
	}
	if again.States[0].Name != "ACTIVE" {
		t.Error("mutating snapshot states leaked into tracker")
	}
}

func TestSnapshotUptime(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	snap := tr.SnapshotAt(start.Add(90 * time.Second))
	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", snap.Uptime())
	}
}

func TestCheckHeartbeat(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)

	if tr.CheckHeartbeat(start.Add(59*time.Second), time.Minute) {
		t.Error("heartbeat fired before the interval elapsed")
	}
	if !tr.CheckHeartbeat(start.Add(time.Minute), time.Minute) {
		t.Error("heartbeat should fire once the interval elapsed")
	}
	if tr.CheckHeartbeat(start.Add(90*time.Second), time.Minute) {
		t.Error("interval should restart at the last heartbeat")
	}
	if !tr.CheckHeartbeat(start.Add(2*time.Minute), time.Minute) {
		t.Error("second heartbeat should fire")
	}
}

func TestCheckHeartbeatDisabled(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	if tr.CheckHeartbeat(start.Add(24*time.Hour), 0) {
		t.Error("zero interval must disable heartbeats")
	}
}

func TestFormatJSON(t *testing.T) {
	cfg := Config{
		Subject:     "desk",
		Monitor:     []activity.Type{activity.Keyboard, activity.Mouse},
		PollMs:      100,
		HeartbeatMs: 900000,
		Broker:      "tcp://localhost:1883",
		HTTPAddr:    ":8080",
	}
	tr := NewTracker(start, cfg, testStates())
	tr.RecordTransition(entered(1, "ACTIVE", start.Add(time.Minute)))
	tr.RecordActivity(activity.Keyboard)
	tr.SetMQTTConnected(true)

	data := FormatJSON(tr.SnapshotAt(start.Add(2 * time.Minute)))

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.Subject != "desk" || s.State != "IDLE" || s.From != "ACTIVE" {
		t.Errorf("unexpected state fields: %+v", s)
	}
	if !s.Ready {
		t.Error("expected ready=true")
	}
	if s.EnteredOn != "2026-01-01T00:01:00Z" {
		t.Errorf("EnteredOn: got %q", s.EnteredOn)
	}
	if s.UptimeSeconds != 120 {
		t.Errorf("UptimeSeconds: got %d, want 120", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("unexpected mqtt: %+v", s.MQTT)
	}
	if len(s.States) != 3 || !s.States[1].Active || s.States[0].Active {
		t.Errorf("unexpected states: %+v", s.States)
	}
	if s.States[1].EnterMs != 60000 || len(s.States[1].Accept) != 1 || s.States[1].Accept[0] != "KEYBOARD" {
		t.Errorf("unexpected IDLE state: %+v", s.States[1])
	}
	if s.Activity["KEYBOARD"] != 1 || s.Transitions["IDLE"] != 1 {
		t.Errorf("unexpected counts: %v %v", s.Activity, s.Transitions)
	}
	if s.Config == nil || len(s.Config.Monitor) != 2 || s.Config.HeartbeatMs != 900000 {
		t.Errorf("unexpected config: %+v", s.Config)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event or reason")
	}
}

func TestFormatJSONUnknownStateBeforeStart(t *testing.T) {
	tr := NewTracker(start, Config{}, testStates())
	data := FormatJSON(tr.SnapshotAt(start))

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", parsed.Status.State)
	}
	if parsed.Status.Ready {
		t.Error("expected ready=false")
	}
	if strings.Contains(string(data), "entered_on") {
		t.Error("entered_on should be omitted before start")
	}
	for _, s := range parsed.Status.States {
		if s.Active {
			t.Errorf("no state should be active before start: %+v", s)
		}
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := NewTracker(start, Config{Subject: "desk"}, testStates())
	tr.RecordTransition(entered(0, "", start))
	snap := tr.SnapshotAt(start)

	var startup StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &startup); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if startup.Status.Event != "STARTUP" || startup.Status.Config == nil {
		t.Errorf("STARTUP should carry event and config: %+v", startup.Status)
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")
	var shutdown StatusJSON
	if err := json.Unmarshal(data, &shutdown); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if shutdown.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q", shutdown.Status.Reason)
	}
	if shutdown.Status.Config != nil {
		t.Error("SHUTDOWN should not carry config")
	}
	if strings.Contains(string(data), "\n") {
		t.Error("MQTT payload should be compact")
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	tr := NewTracker(start, Config{}, nil)
	data := FormatStatusEvent(tr.SnapshotAt(start), "HEARTBEAT", "")

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := parsed["status"]["reason"]; ok {
		t.Error("reason should be omitted")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{}, testStates())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RecordTransition(entered(i%3, "", time.Now()))
			tr.RecordActivity(activity.Touch)
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
