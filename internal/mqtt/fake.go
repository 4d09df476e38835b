package mqtt

import (
	"sync"

	"github.com/sweeney/presenced/internal/presence"
)

// FakePublisher records published events for test assertions.
// It is safe for concurrent use; read the recorded slices only after the
// goroutines publishing to it have finished, or via the accessor methods.
type FakePublisher struct {
	mu sync.Mutex

	// Subject is used to format transition payloads.
	Subject string

	// Transitions contains all presence transitions that were published.
	Transitions []presence.Transition

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	onActivity ActivityHandler
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Subject: "test"}
}

// Publish records the transition.
func (f *FakePublisher) Publish(t presence.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(f.Subject, t)
	if err != nil {
		return err
	}
	f.Transitions = append(f.Transitions, t)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// SubscribeActivity sets the handler that Deliver passes events to.
func (f *FakePublisher) SubscribeActivity(h ActivityHandler) {
	f.mu.Lock()
	f.onActivity = h
	f.mu.Unlock()
}

// Deliver simulates a message arriving on the activity topic.
func (f *FakePublisher) Deliver(payload []byte) error {
	ev, err := ParseActivity(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	h := f.onActivity
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
	return nil
}

// States returns the names of the published transitions in order.
func (f *FakePublisher) States() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Transitions))
	for i, t := range f.Transitions {
		out[i] = t.State
	}
	return out
}

// SystemEventNames returns the published system event names in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		out[i] = e.Event
	}
	return out
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
