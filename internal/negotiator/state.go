package negotiator

import "github.com/pion/webrtc/v4"

// State is the negotiation phase of one participant session.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Role is decided by who arrived first in the room. The member that was
// already waiting when the other joined is the initiator.
type Role int

const (
	RoleUndetermined Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleUndetermined:
		return "undetermined"
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the negotiator for observers.
type Status struct {
	State     State
	Role      Role
	Err       error
	Transport webrtc.PeerConnectionState

	PendingCandidates int
	AppliedCandidates int
	DroppedCandidates int
}
