package packetstream

// State is the lifecycle state of a StreamCore. Exactly one State is
// current at any time.
type State int

const (
	// StateNone is the initial state, before Lock or Start has been
	// called.
	StateNone State = iota
	// StateLocked is a frozen pre-active state: adapters cannot be
	// attached or detached, and packets are not yet dispatched.
	StateLocked
	// StateActive dispatches packets through the processor chain.
	StateActive
	// StatePaused suspends packet forwarding without tearing down the
	// graph.
	StatePaused
	// StateResetting is a transient state en route back to Active.
	StateResetting
	// StateStopping is a transient state en route to Stopped.
	StateStopping
	// StateStopped indicates sources have been stopped.
	StateStopped
	// StateClosed is a terminal state: the graph has been torn down.
	StateClosed
	// StateError is a terminal state reached after a processor failure.
	StateError
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateLocked:
		return "Locked"
	case StateActive:
		return "Active"
	case StatePaused:
		return "Paused"
	case StateResetting:
		return "Resetting"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateClosed:
		return "Closed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}
