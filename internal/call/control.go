package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ControlChannelLabel names the data channel carrying call control. Both
// sides create it as a negotiated channel with id 0 before negotiating.
const ControlChannelLabel = "warpcall-control"

// Control message types.
const (
	ControlHangup     = "hangup"
	ControlMediaState = "media_state"
)

// ControlMessage is one msgpack frame on the control channel.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// MediaState tells the peer which media the sender is transmitting.
type MediaState struct {
	Audio bool `msgpack:"audio"`
	Video bool `msgpack:"video"`
}

// DecodePayload decodes the message payload into the provided struct
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewControlMessage creates a ControlMessage with the given type and payload
func NewControlMessage(t string, payload any) (ControlMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return ControlMessage{}, err
	}
	return ControlMessage{Type: t, Payload: b}, nil
}

func EncodeControl(m ControlMessage) ([]byte, error) {
	return msgpack.Marshal(m)
}

func DecodeControl(b []byte) (ControlMessage, error) {
	var m ControlMessage
	err := msgpack.Unmarshal(b, &m)
	return m, err
}

// CreateControlChannel adds the negotiated control channel to pc.
func CreateControlChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	negotiated := true
	ordered := true
	id := uint16(0)

	dc, err := pc.CreateDataChannel(ControlChannelLabel, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return nil, NewError("create control channel", err)
	}
	return dc, nil
}

func sendControl(dc *webrtc.DataChannel, t string, payload any) error {
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return nil
	}
	msg, err := NewControlMessage(t, payload)
	if err != nil {
		return err
	}
	b, err := EncodeControl(msg)
	if err != nil {
		return err
	}
	return dc.Send(b)
}
