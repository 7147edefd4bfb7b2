package lib

import "time"

// BackendKind identifies which OCR backend to run.
type BackendKind string

const (
	BackendPaddleOCR BackendKind = "PaddleOCR"
)

func (k BackendKind) String() string { return string(k) }

// State is the supervisor lifecycle state.
// Stopped -> Starting -> {Ready, TimedOut, StoppedByUser}; Ready -> Stopping -> Stopped.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateReady
	StateTimedOut
	StateStoppedByUser
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateTimedOut:
		return "timed-out"
	case StateStoppedByUser:
		return "stopped-by-user"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String; unknown names map to StateStopped.
func ParseState(name string) State {
	for s := StateStopped; s <= StateStopping; s++ {
		if s.String() == name {
			return s
		}
	}
	return StateStopped
}

// Command captures command metadata used to start a process.
type Command struct {
	Command string
	Args    []string
}

// SupervisorStatus is a snapshot of the externally observable supervisor state.
// Running and TimedOut are the two status flags callers act on; the rest is informational.
type SupervisorStatus struct {
	Kind      BackendKind
	State     State
	Running   bool
	TimedOut  bool
	RunID     string
	PID       int
	StartedAt time.Time
}
