// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Apix Contributors

package plan

// State is the lifecycle state of a Plan.
type State int

const (
	StateEmpty State = iota
	StatePopulated
	StateValidated
	StateApplied
	StateDiscarded
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePopulated:
		return "populated"
	case StateValidated:
		return "validated"
	case StateApplied:
		return "applied"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// validTransitions defines allowed state transitions as an adjacency list.
var validTransitions = map[State]map[State]bool{
	StateEmpty: {
		StatePopulated: true,
		StateDiscarded: true,
	},
	StatePopulated: {
		StateValidated: true,
		StateDiscarded: true,
	},
	StateValidated: {
		StateApplied:   true,
		StateDiscarded: true,
	},
	StateApplied:   {},
	StateDiscarded: {},
}

// ValidTransition returns true if transitioning from one state to another is allowed.
func ValidTransition(from, to State) bool {
	allowed, exists := validTransitions[from][to]
	return exists && allowed
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}
