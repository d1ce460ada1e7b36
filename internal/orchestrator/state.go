package orchestrator

import (
	"fmt"
)

// State tracks an in-flight query through its lifecycle.
type State string

const (
	// StateReceived means the query has been accepted but work has not begun.
	StateReceived State = "received"
	// StateFetching means provider fan-out is in progress.
	StateFetching State = "fetching"
	// StateSynthesizing means the completion provider is generating.
	StateSynthesizing State = "synthesizing"
	// StateCompleted is the terminal success state.
	StateCompleted State = "completed"
	// StateFailed is the terminal failure state.
	StateFailed State = "failed"
)

var transitions = map[State][]State{
	StateReceived:     {StateFetching, StateCompleted, StateFailed},
	StateFetching:     {StateSynthesizing, StateCompleted, StateFailed},
	StateSynthesizing: {StateCompleted, StateFailed},
}

// queryState is the per-query state machine. Timeout and degradation
// paths all move through the same typed transitions, which keeps them
// testable.
type queryState struct {
	current State
}

func newQueryState() *queryState {
	return &queryState{current: StateReceived}
}

// transition advances the machine, rejecting moves the lifecycle does
// not allow.
func (s *queryState) transition(to State) error {
	for _, allowed := range transitions[s.current] {
		if allowed == to {
			s.current = to
			return nil
		}
	}
	return fmt.Errorf("invalid query state transition %s -> %s", s.current, to)
}
