package session

import "slices"

// State is the session manager's lifecycle state.
type State string

const (
	Bootstrapping   State = "bootstrapping"
	Unauthenticated State = "unauthenticated"
	Authenticated   State = "authenticated"
	Refreshing      State = "refreshing"
)

func (s State) String() string {
	return string(s)
}

// Active reports whether the state counts as signed in.
func (s State) Active() bool {
	return s == Authenticated || s == Refreshing
}

var transitions = map[State][]State{
	Bootstrapping:   {Unauthenticated, Authenticated},
	Unauthenticated: {Authenticated},
	Authenticated:   {Refreshing, Unauthenticated},
	Refreshing:      {Authenticated, Unauthenticated},
}

// CanTransition reports whether moving from one state to another is allowed.
// Staying in the same state is always allowed.
func CanTransition(from, to State) bool {
	return from == to || slices.Contains(transitions[from], to)
}
