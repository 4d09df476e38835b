package presence

import (
	"fmt"
	"log"
	"sync"

	"github.com/sweeney/presenced/internal/activity"
	"github.com/sweeney/presenced/internal/clock"
)

const noState = -1

// Engine owns the ordered states of one subject, the current state, the single
// idle timer and the notification callbacks.
type Engine struct {
	clock          clock.Clock
	dispatcher     Dispatcher
	ownsDispatcher bool
	logger         *log.Logger

	mu        sync.Mutex
	states    []*State
	entry     map[activity.Type]int
	initialID int
	current   int
	timer     clock.Timer
	timerGen  uint64 // bumped on every cancel; a firing timer with an old gen is stale
	closed    bool

	enterCallbacks  map[int][]func(State)
	leaveCallbacks  map[int][]func(State)
	changeCallbacks []func(State)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Defaults to the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDispatcher sets where notifications run. Defaults to a private Queue
// that Close shuts down; a dispatcher passed here is not closed by the engine.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithLogger sets the logger for informational messages.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine with no states. Call Init before anything else.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:          clock.Real{},
		logger:         log.Default(),
		current:        noState,
		enterCallbacks: make(map[int][]func(State)),
		leaveCallbacks: make(map[int][]func(State)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dispatcher == nil {
		e.dispatcher = NewQueue()
		e.ownsDispatcher = true
	}
	return e
}

// Init orders defs, builds the entry-state map and, unless startDelayed is
// set, enters the initial state.
func (e *Engine) Init(defs []Definition, startDelayed bool) (*Set, error) {
	for _, d := range defs {
		if d.Enter < 0 {
			e.logger.Printf("presence: state %q: negative enter %v treated as 0", d.Name, d.Enter)
		}
	}
	states, initialID, err := Normalize(defs)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.states != nil {
		return nil, ErrAlreadyInitialized
	}

	e.states = states
	e.initialID = initialID
	e.entry = buildEntryStates(states)

	if !startDelayed {
		if err := e.changeStateLocked(initialID); err != nil {
			return nil, err
		}
	}
	return newSet(e, states), nil
}

// Start enters h's state, or the initial state if h is nil. It is a no-op if
// the engine has already entered a state or a timer is pending.
func (e *Engine) Start(h *Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.states == nil {
		return ErrNotInitialized
	}
	if e.timer != nil || e.current != noState {
		e.logger.Printf("presence: timer already started (state %s)", e.currentNameLocked())
		return nil
	}

	id := e.initialID
	if h != nil {
		id = h.ID
	}
	return e.changeStateLocked(id)
}

// ChangeState moves the subject to state id, fires leave/enter/change
// notifications and restarts the idle timer.
func (e *Engine) ChangeState(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.changeStateLocked(id)
}

// RegisterAction reports activity of type t. It rewinds to the entry state of
// t if that is more active than the current state, refreshes the idle timer
// if it is the current state, and otherwise does nothing. Activity before
// Init or before the first state is entered is ignored.
func (e *Engine) RegisterAction(t activity.Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.states == nil || e.current == noState {
		return
	}

	target := e.entry[t]
	switch {
	case target < e.current:
		if err := e.changeStateLocked(target); err != nil {
			e.logger.Printf("presence: rewind on %s: %v", t, err)
		}
	case target == e.current:
		e.restartTimerLocked()
	}
}

// IsActive reports whether an idle timer is pending.
func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timer != nil
}

// Current returns the current state. ok is false until a state was entered.
func (e *Engine) Current() (s State, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == noState {
		return State{}, false
	}
	return e.states[e.current].snapshot(), true
}

// States returns the ordered state sequence.
func (e *Engine) States() []State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]State, len(e.states))
	for i, s := range e.states {
		out[i] = s.snapshot()
	}
	return out
}

// InitialID returns the id entered by Init and Start(nil).
func (e *Engine) InitialID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialID
}

// EntryStates returns a copy of the activity type to entry state map.
func (e *Engine) EntryStates() map[activity.Type]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[activity.Type]int, len(e.entry))
	for t, id := range e.entry {
		out[t] = id
	}
	return out
}

// OnEnter registers fn to run every time state id is entered.
func (e *Engine) OnEnter(id int, fn func(State)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.enterCallbacks[id] = append(e.enterCallbacks[id], fn)
	e.mu.Unlock()
}

// OnLeave registers fn to run every time state id is left.
func (e *Engine) OnLeave(id int, fn func(State)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.leaveCallbacks[id] = append(e.leaveCallbacks[id], fn)
	e.mu.Unlock()
}

// OnChange registers fn to run after every transition.
func (e *Engine) OnChange(fn func(State)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.changeCallbacks = append(e.changeCallbacks, fn)
	e.mu.Unlock()
}

// Close cancels the idle timer and stops accepting activity. Notifications
// already posted still run; Close waits for them if the engine owns its queue.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancelTimerLocked()
	e.mu.Unlock()

	if q, ok := e.dispatcher.(interface{ Close() }); ok && e.ownsDispatcher {
		q.Close()
	}
}

func (e *Engine) changeStateLocked(id int) error {
	if id < 0 || id >= len(e.states) {
		return fmt.Errorf("%w: %d", ErrUnknownState, id)
	}

	now := e.clock.Now()
	oldID := e.current
	from := ""
	if oldID != noState {
		old := e.states[oldID]
		old.LeftOn = now
		old.Active = false
		from = old.Name
	}

	next := e.states[id]
	next.Active = true
	next.EnteredOn = now
	next.EnteredFrom = from
	e.current = id

	snap := next.snapshot()
	e.dispatcher.Post(func() {
		// Callbacks registered after the transition but before delivery
		// are included.
		leave, enter, change := e.callbacks(oldID, id)
		notify(leave, snap)
		notify(enter, snap)
		notify(change, snap)
	})

	e.restartTimerLocked()
	return nil
}

// restartTimerLocked replaces the pending timer with one counting down the
// gap between the current state's threshold and the next one's.
func (e *Engine) restartTimerLocked() {
	e.cancelTimerLocked()
	if e.current == noState || e.current+1 >= len(e.states) {
		return
	}

	delay := e.states[e.current+1].Enter - e.states[e.current].Enter
	gen := e.timerGen
	e.timer = e.clock.AfterFunc(delay, func() {
		e.promote(gen)
	})
}

func (e *Engine) cancelTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}

// promote is the idle timer callback.
func (e *Engine) promote(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || gen != e.timerGen {
		return
	}
	e.timer = nil
	if err := e.changeStateLocked(e.current + 1); err != nil {
		e.logger.Printf("presence: auto-promotion: %v", err)
	}
}

func (e *Engine) currentNameLocked() string {
	if e.current == noState {
		return "none"
	}
	return e.states[e.current].Name
}

// callbacks copies the leave callbacks of oldID, the enter callbacks of id
// and the change callbacks.
func (e *Engine) callbacks(oldID, id int) (leave, enter, change []func(State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if oldID != noState {
		leave = cloneCallbacks(e.leaveCallbacks[oldID])
	}
	return leave, cloneCallbacks(e.enterCallbacks[id]), cloneCallbacks(e.changeCallbacks)
}

func cloneCallbacks(fns []func(State)) []func(State) {
	if len(fns) == 0 {
		return nil
	}
	out := make([]func(State), len(fns))
	copy(out, fns)
	return out
}

func notify(fns []func(State), s State) {
	for _, fn := range fns {
		fn(s)
	}
}
