package session

// State represents a session lifecycle state
type State string

const (
	// StateSpeaking means synthesis audio for the current question is being
	// delivered to the client.
	StateSpeaking State = "speaking"
	// StateActive means a question has been delivered and candidate speech is
	// being collected.
	StateActive State = "active"
	// StateProcessing means a final answer was received and the next turn is
	// being generated.
	StateProcessing State = "processing"
	// StateCompleted is terminal: all questions answered.
	StateCompleted State = "completed"
	// StateAborted is terminal: unrecoverable error or explicit termination.
	StateAborted State = "aborted"
)

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// allowed holds the lifecycle graph. Aborted is reachable from any
// non-terminal state and is handled separately in Transition.
var allowed = map[State][]State{
	StateSpeaking:   {StateActive, StateCompleted},
	StateActive:     {StateProcessing},
	StateProcessing: {StateSpeaking, StateCompleted},
}

func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateAborted {
		return true
	}
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}
