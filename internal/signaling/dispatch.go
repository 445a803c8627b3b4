package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Events receives what the relay reports about the room.
type Events interface {
	PeerJoined()
	PeerLeft()
	RemoteSignal(data protocol.SignalData)
	RelayError(err error)
	ChannelClosed(err error)
}

// Dispatch translates one inbound message into a call on events. Signal data
// that does not decode is returned as an error wrapping
// protocol.ErrInvalidSignal and nothing is called.
func Dispatch(msg *protocol.Message, events Events) error {
	switch msg.Type {
	case protocol.MessageTypePeerJoined:
		events.PeerJoined()

	case protocol.MessageTypePeerLeft:
		events.PeerLeft()

	case protocol.MessageTypeSignal:
		var data protocol.SignalData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			if !errors.Is(err, protocol.ErrInvalidSignal) {
				err = fmt.Errorf("%w: %w", protocol.ErrInvalidSignal, err)
			}
			return err
		}
		events.RemoteSignal(data)

	case protocol.MessageTypeError:
		events.RelayError(RelayError(msg.Error))

	case protocol.MessageTypeJoined, protocol.MessageTypeRoomCreated:
		// repeated acknowledgement of an idempotent join

	default:
		return fmt.Errorf("%w: unexpected message type %q", ErrSignalingError, msg.Type)
	}
	return nil
}

// Pump dispatches inbound messages until the channel closes or ctx is done.
// Channel close is reported to events and returned as ErrChannelClosed.
func Pump(ctx context.Context, c *Client, events Events, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		msg, err := c.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			events.ChannelClosed(err)
			return err
		}
		if err := Dispatch(msg, events); err != nil {
			logger.Warn("dropping relay message", "type", msg.Type, "error", err)
		}
	}
}
