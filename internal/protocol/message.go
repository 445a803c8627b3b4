package protocol

import "encoding/json"

// Message is the envelope for every relay channel frame, in both directions.
type Message struct {
	Type   string          `json:"type"`
	RoomID string          `json:"room_id,omitempty"`
	Peers  int             `json:"peers,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// Message type constants.
const (
	MessageTypeJoinRoom   = "join-room"
	MessageTypeCreateRoom = "create-room"
	MessageTypeSignal     = "signal"

	MessageTypeRoomCreated = "room-created"
	MessageTypeJoined      = "joined"
	MessageTypePeerJoined  = "peer-joined"
	MessageTypePeerLeft    = "peer-left"
	MessageTypeError       = "error"
)

// Error codes carried in ErrorPayload.Code.
const (
	ErrorCodeRoomFull      = "room_full"
	ErrorCodeNotInRoom     = "not_in_room"
	ErrorCodeAlreadyInRoom = "already_in_room"
	ErrorCodeBadRequest    = "bad_request"
)

// ErrorPayload describes a request the relay refused.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error frame.
func NewErrorMessage(code, message string) *Message {
	return &Message{
		Type:  MessageTypeError,
		Error: &ErrorPayload{Code: code, Message: message},
	}
}

// NewSignalMessage wraps signal data in a frame addressed to roomID.
func NewSignalMessage(roomID string, data SignalData) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MessageTypeSignal, RoomID: roomID, Data: raw}, nil
}
