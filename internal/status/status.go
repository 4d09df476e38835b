// Package status provides a thread-safe status tracker for the presenced daemon.
// It is read by the HTTP handlers and by the heartbeat in the run loop.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/presence"
)

// Config contains daemon configuration for display.
type Config struct {
	Subject     string
	Monitor     []activity.Type
	PollMs      int64
	DebounceMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	GPIOLines   int
}

// StateInfo describes one configured state.
type StateInfo struct {
	ID      int
	Name    string
	Enter   time.Duration
	Initial bool
	Accept  []activity.Type
	Text    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; its maps are copies and safe to use after the lock is released.
type Snapshot struct {
	// Current is the current presence state; Started is false until one was entered.
	Current       presence.State
	Started       bool
	States        []StateInfo
	Transitions   map[string]int
	Activity      map[activity.Type]int
	Ignored       int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TotalTransitions returns the number of transitions since startup.
func (s Snapshot) TotalTransitions() int {
	n := 0
	for _, c := range s.Transitions {
		n += c
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu            sync.RWMutex
	snap          Snapshot
	lastHeartbeat time.Time
}

// NewTracker creates a Tracker with the given start time, config and ordered states.
func NewTracker(startTime time.Time, cfg Config, states []presence.State) *Tracker {
	infos := make([]StateInfo, len(states))
	for i, s := range states {
		infos[i] = StateInfo{
			ID:      s.ID,
			Name:    s.Name,
			Enter:   s.Enter,
			Initial: s.Initial,
			Accept:  append([]activity.Type(nil), s.Accept...),
			Text:    s.Text,
		}
	}
	return &Tracker{
		snap: Snapshot{
			States:      infos,
			Transitions: make(map[string]int),
			Activity:    make(map[activity.Type]int),
			StartTime:   startTime,
			Config:      cfg,
		},
		lastHeartbeat: startTime,
	}
}

// RecordTransition sets the current state and counts the entry.
// Called from the engine's change notification.
func (t *Tracker) RecordTransition(s presence.State) {
	t.mu.Lock()
	t.snap.Current = s
	t.snap.Started = true
	t.snap.Transitions[s.Name]++
	t.mu.Unlock()
}

// RecordActivity counts one classified activity event.
func (t *Tracker) RecordActivity(a activity.Type) {
	t.mu.Lock()
	t.snap.Activity[a]++
	t.mu.Unlock()
}

// RecordIgnored counts one raw event that was filtered or not recognised.
func (t *Tracker) RecordIgnored() {
	t.mu.Lock()
	t.snap.Ignored++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// CheckHeartbeat reports whether interval has elapsed since the last
// heartbeat (or startup) and, if so, restarts the interval at now.
// It never fires if interval is <= 0 (disabled).
func (t *Tracker) CheckHeartbeat(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastHeartbeat) < interval {
		return false
	}
	t.lastHeartbeat = now
	return true
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	return t.SnapshotAt(time.Now())
}

// SnapshotAt is Snapshot with an explicit Now.
func (t *Tracker) SnapshotAt(now time.Time) Snapshot {
	t.mu.RLock()
	s := t.snap
	s.States = append([]StateInfo(nil), t.snap.States...)
	s.Transitions = make(map[string]int, len(t.snap.Transitions))
	for k, v := range t.snap.Transitions {
		s.Transitions[k] = v
	}
	s.Activity = make(map[activity.Type]int, len(t.snap.Activity))
	for k, v := range t.snap.Activity {
		s.Activity[k] = v
	}
	t.mu.RUnlock()
	s.Now = now
	return s
}
