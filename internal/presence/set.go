package presence

// Set is the handle Init returns: the ordered states of an engine with their
// per-state accessors.
type Set struct {
	engine  *Engine
	handles []*Handle
	byName  map[string]*Handle
}

// Handle is bound to one state id of an engine.
type Handle struct {
	engine *Engine
	ID     int
	Name   string
}

func newSet(e *Engine, states []*State) *Set {
	s := &Set{
		engine:  e,
		handles: make([]*Handle, len(states)),
		byName:  make(map[string]*Handle, len(states)),
	}
	for i, st := range states {
		h := &Handle{engine: e, ID: st.ID, Name: st.Name}
		s.handles[i] = h
		s.byName[st.Name] = h
	}
	return s
}

// Get returns the handle of the named state, or nil.
func (s *Set) Get(name string) *Handle {
	return s.byName[name]
}

// Handles returns the handles in state order.
func (s *Set) Handles() []*Handle {
	return append([]*Handle(nil), s.handles...)
}

// Initial returns the handle of the initial state.
func (s *Set) Initial() *Handle {
	return s.handles[s.engine.InitialID()]
}

// OnChange registers fn to run after every transition.
func (s *Set) OnChange(fn func(State)) {
	s.engine.OnChange(fn)
}

// Current returns the current state.
func (s *Set) Current() (State, bool) {
	return s.engine.Current()
}

// OnEnter registers fn to run every time this state is entered.
func (h *Handle) OnEnter(fn func(State)) {
	h.engine.OnEnter(h.ID, fn)
}

// OnLeave registers fn to run every time this state is left.
func (h *Handle) OnLeave(fn func(State)) {
	h.engine.OnLeave(h.ID, fn)
}

// Activate makes this the current state.
func (h *Handle) Activate() error {
	return h.engine.ChangeState(h.ID)
}

// State returns a snapshot of this state.
func (h *Handle) State() State {
	return h.engine.States()[h.ID]
}
