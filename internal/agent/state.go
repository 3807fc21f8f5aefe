package agent

import "fmt"

// State is a RestockWorkflow stage.
type State int

const (
	StateIdle State = iota
	StateDeciding
	StateRequestingOrder
	StateAwaitingPayment
	StateExecutingSettlement
	StateAwaitingConfirmation
	StateSubmittingProof
	StateCompleted
	StateFailed
	StateFallbackDiscovery
)

var stateNames = [...]string{
	StateIdle:                 "Idle",
	StateDeciding:             "Deciding",
	StateRequestingOrder:      "RequestingOrder",
	StateAwaitingPayment:      "AwaitingPayment",
	StateExecutingSettlement:  "ExecutingSettlement",
	StateAwaitingConfirmation: "AwaitingConfirmation",
	StateSubmittingProof:      "SubmittingProof",
	StateCompleted:            "Completed",
	StateFailed:               "Failed",
	StateFallbackDiscovery:    "FallbackDiscovery",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// IsTerminal reports whether a run ends in s. Failed is terminal only when
// no fallback follows it.
func (s State) IsTerminal() bool {
	return s == StateIdle || s == StateCompleted || s == StateFailed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown workflow state %q", text)
}
