package callstore

// Status is the lifecycle state of a call.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusDialing   Status = "dialing"
	StatusConnected Status = "connected"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Allowed forward edges. Failure is reachable from any non-terminal state.
var transitions = map[Status][]Status{
	StatusInitiated: {StatusDialing, StatusFailed},
	StatusDialing:   {StatusConnected, StatusCompleted, StatusFailed},
	StatusConnected: {StatusCompleted, StatusFailed},
}

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusDialing, StatusConnected, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from one state to another follows an
// edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
