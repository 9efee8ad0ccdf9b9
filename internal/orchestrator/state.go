package orchestrator

import "fmt"

// State is a step of a deployment run
type State int

const (
	StatePending State = iota
	StateSubmitted
	StateConfirmed
	StateVerifying
	StateVerified
	StateVerifySkipped
	StateVerifyFailed
	StateDone
)

var stateNames = [...]string{
	StatePending:       "PENDING",
	StateSubmitted:     "SUBMITTED",
	StateConfirmed:     "CONFIRMED",
	StateVerifying:     "VERIFYING",
	StateVerified:      "VERIFIED",
	StateVerifySkipped: "VERIFY_SKIPPED",
	StateVerifyFailed:  "VERIFY_FAILED",
	StateDone:          "DONE",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// next lists the legal successors of each state
var next = map[State][]State{
	StatePending:       {StateSubmitted},
	StateSubmitted:     {StateConfirmed},
	StateConfirmed:     {StateVerifying, StateVerifySkipped},
	StateVerifying:     {StateVerified, StateVerifyFailed},
	StateVerified:      {StateDone},
	StateVerifySkipped: {StateDone},
	StateVerifyFailed:  {StateDone},
}

// CanTransition reports whether from → to is a legal step
func CanTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
