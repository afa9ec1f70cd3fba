package domain

import "strings"

// State is the lifecycle position of a download job.
type State string

const (
	StateQueued      State = "Queued"
	StateStarting    State = "Starting"
	StateDownloading State = "Downloading"
	StateMerging     State = "Merging"
	StateRetrying    State = "Retrying"
	StateCompleted   State = "Completed"
	StateError       State = "Error"
	StateStopped     State = "Stopped"
	StateInterrupted State = "Interrupted"
)

// Order matters for StateFromStatusText: finished markers are matched first.
var (
	finishedStates = []State{StateCompleted, StateError, StateStopped, StateInterrupted}
	pendingStates  = []State{StateQueued, StateStarting, StateDownloading, StateMerging, StateRetrying}
)

var allowedTransitions = map[State]map[State]bool{
	StateQueued: {
		StateStarting:    true,
		StateStopped:     true,
		StateInterrupted: true,
	},
	StateStarting: {
		StateDownloading: true,
		StateMerging:     true,
		StateCompleted:   true,
		StateRetrying:    true,
		StateError:       true,
		StateStopped:     true,
		StateInterrupted: true,
	},
	StateDownloading: {
		StateDownloading: true,
		StateMerging:     true,
		StateCompleted:   true,
		StateRetrying:    true,
		StateError:       true,
		StateStopped:     true,
		StateInterrupted: true,
	},
	StateMerging: {
		StateDownloading: true,
		StateMerging:     true,
		StateCompleted:   true,
		StateRetrying:    true,
		StateError:       true,
		StateStopped:     true,
		StateInterrupted: true,
	},
	StateRetrying: {
		StateQueued:      true,
		StateStarting:    true, // re-admitted straight from the queue tail
		StateStopped:     true,
		StateInterrupted: true,
	},
	// Terminal states only leave through an explicit retry.
	StateCompleted:   {StateQueued: true},
	StateError:       {StateQueued: true},
	StateStopped:     {StateQueued: true},
	StateInterrupted: {StateQueued: true},
}

func (s State) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no automatic transition leaves s.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateError, StateStopped, StateInterrupted:
		return true
	}
	return false
}

// IsActive reports whether a worker occupies a concurrency slot in state s.
func (s State) IsActive() bool {
	switch s {
	case StateStarting, StateDownloading, StateMerging:
		return true
	}
	return false
}

// IsPending reports whether s is waiting in the queue for admission.
func (s State) IsPending() bool {
	return s == StateQueued || s == StateRetrying
}

func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// StateFromStatusText guesses a state from a free-text status line written by
// older versions that did not persist the state explicitly.
func StateFromStatusText(text string) State {
	if text == "" {
		return StateInterrupted
	}
	for _, s := range finishedStates {
		if strings.Contains(text, string(s)) {
			return s
		}
	}
	for _, s := range pendingStates {
		if strings.Contains(text, string(s)) {
			return s
		}
	}
	return StateInterrupted
}
