package signaling

import (
	"context"
	"fmt"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// JoinResult is the relay's acknowledgement of an admission.
type JoinResult struct {
	RoomID string
	Peers  int
}

// Create asks the relay for a generated room and waits until the caller is
// admitted to it.
func (c *Client) Create(ctx context.Context) (string, error) {
	if err := c.Send(&protocol.Message{Type: protocol.MessageTypeCreateRoom}); err != nil {
		return "", err
	}
	msg, err := c.await(ctx, protocol.MessageTypeRoomCreated)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	c.setRoom(msg.RoomID)
	return msg.RoomID, nil
}

// Join asks the relay to admit the caller to roomID. A full room fails with
// ErrRoomFull.
func (c *Client) Join(ctx context.Context, roomID string) (JoinResult, error) {
	if err := c.Send(&protocol.Message{Type: protocol.MessageTypeJoinRoom, RoomID: roomID}); err != nil {
		return JoinResult{}, err
	}
	msg, err := c.await(ctx, protocol.MessageTypeJoined)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join room %s: %w", roomID, err)
	}
	c.setRoom(msg.RoomID)
	return JoinResult{RoomID: msg.RoomID, Peers: msg.Peers}, nil
}

func (c *Client) setRoom(id string) {
	c.mu.Lock()
	c.roomID = id
	c.mu.Unlock()
}

// await reads until a message of type want or an error frame. Anything else
// is kept for Next.
func (c *Client) await(ctx context.Context, want string) (*protocol.Message, error) {
	for {
		select {
		case msg, ok := <-c.incoming:
			if !ok {
				return nil, c.Err()
			}
			switch msg.Type {
			case want:
				return msg, nil
			case protocol.MessageTypeError:
				return nil, RelayError(msg.Error)
			default:
				c.mu.Lock()
				c.backlog = append(c.backlog, msg)
				c.mu.Unlock()
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RelayError converts an error frame into an error matching the package
// sentinels.
func RelayError(p *protocol.ErrorPayload) error {
	if p == nil {
		return fmt.Errorf("%w: empty error", ErrSignalingError)
	}
	if p.Code == protocol.ErrorCodeRoomFull {
		return ErrRoomFull
	}
	return fmt.Errorf("%w: %s: %s", ErrSignalingError, p.Code, p.Message)
}
