package signaling

import (
	"fmt"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Sender is the outbound half of a Client.
type Sender interface {
	Send(msg *protocol.Message) error
	RoomID() string
}

// RoomSignaler sends negotiation payloads to the other member of the current
// room.
type RoomSignaler struct {
	sender Sender
}

func NewRoomSignaler(sender Sender) *RoomSignaler {
	return &RoomSignaler{sender: sender}
}

func (s *RoomSignaler) SendSignal(data protocol.SignalData) error {
	roomID := s.sender.RoomID()
	if roomID == "" {
		return fmt.Errorf("%w: not in a room", ErrSignalingError)
	}
	msg, err := protocol.NewSignalMessage(roomID, data)
	if err != nil {
		return err
	}
	return s.sender.Send(msg)
}
