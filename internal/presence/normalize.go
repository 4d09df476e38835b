package presence

import (
	"fmt"
	"sort"

	"github.com/sweeney/presenced/internal/activity"
)

// Normalize validates defs and returns them as the ordered state sequence:
// ascending by Enter, ties in declaration order, each stamped with its ID.
// A negative Enter counts as 0.
// The returned initial id is that of the last state marked Initial, or 0.
func Normalize(defs []Definition) ([]*State, int, error) {
	if len(defs) == 0 {
		return nil, 0, fmt.Errorf("%w: no states", ErrInvalidDefinition)
	}

	states := make([]*State, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, 0, fmt.Errorf("%w: state without a name", ErrInvalidDefinition)
		}
		if seen[d.Name] {
			return nil, 0, fmt.Errorf("%w: duplicate state %q", ErrInvalidDefinition, d.Name)
		}
		seen[d.Name] = true

		var accept []activity.Type
		for _, t := range d.Accept {
			canonical, err := activity.Lookup(string(t))
			if err != nil {
				return nil, 0, fmt.Errorf("%w: state %q: %v", ErrInvalidDefinition, d.Name, err)
			}
			if !activity.Contains(accept, canonical) {
				accept = append(accept, canonical)
			}
		}

		enter := d.Enter
		if enter < 0 {
			enter = 0
		}
		states = append(states, &State{
			Name:    d.Name,
			Enter:   enter,
			Initial: d.Initial,
			Accept:  accept,
			Text:    d.Text,
		})
	}

	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Enter < states[j].Enter
	})

	initialID := 0
	for id, s := range states {
		s.ID = id
		if s.Initial {
			initialID = id
		}
	}
	return states, initialID, nil
}

// buildEntryStates maps each activity type to the state id it rewinds to.
// A state that accepts some types sends every other type to the next state;
// types never mentioned are absent and resolve to 0 at lookup.
func buildEntryStates(states []*State) map[activity.Type]int {
	entry := make(map[activity.Type]int)
	for _, s := range states {
		if len(s.Accept) == 0 {
			continue
		}
		for _, t := range activity.All() {
			if !activity.Contains(s.Accept, t) {
				entry[t] = s.ID + 1
			}
		}
	}
	return entry
}
