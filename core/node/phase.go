package node

import "fmt"

// Phase is a node's lifecycle position.
//
//	Created → PreStarted → Started → Accepting → PreStopped → Stopped → Terminated
//
// A startup that is abandoned ends in Cancelled.
type Phase int32

const (
	PhaseCreated Phase = iota
	PhasePreStarted
	PhaseStarted
	PhaseAccepting
	PhasePreStopped
	PhaseStopped
	PhaseTerminated
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhasePreStarted:
		return "pre-started"
	case PhaseStarted:
		return "started"
	case PhaseAccepting:
		return "accepting"
	case PhasePreStopped:
		return "pre-stopped"
	case PhaseStopped:
		return "stopped"
	case PhaseTerminated:
		return "terminated"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// State is a node's health as seen by the watchdog.
type State int

const (
	StateUnknown State = iota
	StateHealthy
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for c := PhaseCreated; c <= PhaseCancelled; c++ {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}
