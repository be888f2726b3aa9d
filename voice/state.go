package voice

// StateType is the playback state of the controller.
type StateType int

const (
	// StateIdle means nothing is requested or playing.
	StateIdle StateType = iota
	// StateRequesting means a tts_request was sent and no audio has arrived.
	StateRequesting
	// StateSynthesizing means the local fallback synthesizer is running.
	StateSynthesizing
	// StatePlaying means the queue is draining.
	StatePlaying
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// StateMachine guards playback state transitions. It is not safe for
// concurrent use; the controller serializes access.
type StateMachine struct {
	current      StateType
	transitions  map[StateType][]StateType
	onTransition func(from, to StateType)
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			// the server may push audio nobody asked for
			StateIdle:         {StateRequesting, StateSynthesizing, StatePlaying},
			StateRequesting:   {StatePlaying, StateIdle},
			StateSynthesizing: {StatePlaying, StateIdle},
			StatePlaying:      {StateIdle},
		},
	}
}

// Transition moves to the given state if the move is allowed.
func (sm *StateMachine) Transition(to StateType) bool {
	if !sm.CanTransition(to) {
		return false
	}
	from := sm.current
	sm.current = to
	if sm.onTransition != nil {
		sm.onTransition(from, to)
	}
	return true
}

// CanTransition reports whether moving to the given state is allowed.
func (sm *StateMachine) CanTransition(to StateType) bool {
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			return true
		}
	}
	return false
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnTransition registers a callback run after every successful transition.
func (sm *StateMachine) OnTransition(fn func(from, to StateType)) {
	sm.onTransition = fn
}
