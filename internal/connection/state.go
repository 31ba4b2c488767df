package connection

import "fmt"

// Availability is the outcome of an availability check.
type Availability int

const (
	// Pending means no check has completed yet.
	Pending Availability = iota
	NotPaired
	NotFound
	Available
)

var availabilityNames = [...]string{
	Pending:   "pending",
	NotPaired: "not_paired",
	NotFound:  "not_found",
	Available: "available",
}

func (a Availability) String() string {
	if a < Pending || a > Available {
		return fmt.Sprintf("availability(%d)", int(a))
	}
	return availabilityNames[a]
}

func (a Availability) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// State is the connection lifecycle state. It only changes inside the Manager.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

var stateNames = [...]string{
	Disconnected:  "disconnected",
	Connecting:    "connecting",
	Connected:     "connected",
	Disconnecting: "disconnecting",
}

func (s State) String() string {
	if s < Disconnected || s > Disconnecting {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// States lists every state in lifecycle order.
func States() []State { return []State{Disconnected, Connecting, Connected, Disconnecting} }

func stateLabels() []string {
	labels := make([]string, 0, len(stateNames))
	for _, s := range States() {
		labels = append(labels, s.String())
	}
	return labels
}
