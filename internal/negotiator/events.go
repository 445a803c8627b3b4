package negotiator

import (
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Event is an input to the state machine.
type Event interface {
	event()
}

// PeerJoinedEvent reports that the other participant joined the room.
type PeerJoinedEvent struct{}

// RemoteSignalEvent carries a description or candidate from the other
// participant.
type RemoteSignalEvent struct {
	Data protocol.SignalData
}

// LocalCandidateEvent carries a candidate gathered by the local connection.
type LocalCandidateEvent struct {
	Candidate webrtc.ICECandidateInit
}

// TransportStateEvent reports a peer connection state change.
type TransportStateEvent struct {
	State webrtc.PeerConnectionState
}

// CloseEvent ends the session.
type CloseEvent struct{}

func (PeerJoinedEvent) event()     {}
func (RemoteSignalEvent) event()   {}
func (LocalCandidateEvent) event() {}
func (TransportStateEvent) event() {}
func (CloseEvent) event()          {}
