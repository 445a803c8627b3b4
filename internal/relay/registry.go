package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/cornelk/hashmap"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// maxMembers is the number of participants a room admits.
const maxMembers = 2

var (
	ErrRoomFull      = errors.New("room is full")
	ErrNotInRoom     = errors.New("not a member of the room")
	ErrAlreadyInRoom = errors.New("already in another room")
	ErrInvalidRoomID = errors.New("invalid room id")

	errRoomClosed = errors.New("room closed")
)

// Member is a participant connection as seen by the registry.
type Member interface {
	ID() string

	// Deliver queues msg for the member without blocking. It returns false
	// when the message could not be queued.
	Deliver(msg *protocol.Message) bool
}

// Stats is a snapshot of the registry size.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
}

// Room pairs at most two members. All mutations and deliveries for a room
// happen under its mutex, which keeps the relayed stream FIFO per room.
type Room struct {
	ID string

	mu      sync.Mutex
	members []Member
	closed  bool
}

func (r *Room) indexOf(id string) int {
	for i, m := range r.members {
		if m.ID() == id {
			return i
		}
	}
	return -1
}

func (r *Room) other(id string) Member {
	for _, m := range r.members {
		if m.ID() != id {
			return m
		}
	}
	return nil
}

// Registry tracks rooms and which room each connection belongs to.
type Registry struct {
	rooms   *hashmap.Map[string, *Room]
	members *hashmap.Map[string, string]
	log     *slog.Logger

	newRoomID func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:     hashmap.New[string, *Room](),
		members:   hashmap.New[string, string](),
		log:       logger.With("component", "registry"),
		newRoomID: GenerateRoomID,
	}
}

// Join admits m to roomID, creating the room on first join. The joiner gets a
// joined acknowledgement; when m is the second member the first one is told
// that a peer joined, which makes it the initiator.
func (r *Registry) Join(roomID string, m Member) error {
	if roomID == "" {
		return ErrInvalidRoomID
	}
	if current, ok := r.members.Get(m.ID()); ok && current != roomID {
		return ErrAlreadyInRoom
	}

	for {
		room, ok := r.rooms.Get(roomID)
		if !ok {
			// GetOrInsert never returns for a key that was deleted before.
			room = &Room{ID: roomID}
			if !r.rooms.Insert(roomID, room) {
				continue
			}
		}
		err := r.admit(room, m)
		if errors.Is(err, errRoomClosed) {
			continue
		}
		return err
	}
}

func (r *Registry) admit(room *Room, m Member) error {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed {
		return errRoomClosed
	}

	if room.indexOf(m.ID()) >= 0 {
		m.Deliver(&protocol.Message{Type: protocol.MessageTypeJoined, RoomID: room.ID, Peers: len(room.members)})
		return nil
	}
	if len(room.members) >= maxMembers {
		r.log.Info("join rejected", "room", room.ID, "conn", m.ID(), "reason", "full")
		return ErrRoomFull
	}

	room.members = append(room.members, m)
	r.members.Set(m.ID(), room.ID)
	r.log.Info("joined room", "room", room.ID, "conn", m.ID(), "peers", len(room.members))

	m.Deliver(&protocol.Message{Type: protocol.MessageTypeJoined, RoomID: room.ID, Peers: len(room.members)})
	if len(room.members) == maxMembers {
		room.members[0].Deliver(&protocol.Message{Type: protocol.MessageTypePeerJoined})
	}
	return nil
}

// Create generates an unused room ID and admits m as its first member.
func (r *Registry) Create(m Member) (string, error) {
	if _, ok := r.members.Get(m.ID()); ok {
		return "", ErrAlreadyInRoom
	}

	for {
		room := &Room{ID: r.newRoomID(), members: []Member{m}}
		room.mu.Lock()
		if !r.rooms.Insert(room.ID, room) {
			room.mu.Unlock()
			continue
		}
		r.members.Set(m.ID(), room.ID)
		r.log.Info("room created", "room", room.ID, "conn", m.ID())
		m.Deliver(&protocol.Message{Type: protocol.MessageTypeRoomCreated, RoomID: room.ID})
		room.mu.Unlock()
		return room.ID, nil
	}
}

// Relay forwards data unchanged to the other member of roomID. It is a no-op
// when the sender is alone in the room.
func (r *Registry) Relay(roomID, senderID string, data json.RawMessage) error {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return ErrNotInRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.indexOf(senderID) < 0 {
		return ErrNotInRoom
	}
	target := room.other(senderID)
	if target == nil {
		r.log.Debug("signal dropped, peer absent", "room", roomID, "conn", senderID)
		return nil
	}
	target.Deliver(&protocol.Message{Type: protocol.MessageTypeSignal, RoomID: roomID, Data: data})
	return nil
}

// Leave removes the participant from its room, tells the remaining member and
// deletes the room once it is empty.
func (r *Registry) Leave(memberID string) {
	roomID, ok := r.members.Get(memberID)
	if !ok {
		return
	}
	r.members.Del(memberID)

	room, ok := r.rooms.Get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	i := room.indexOf(memberID)
	if i < 0 {
		return
	}
	room.members = append(room.members[:i], room.members[i+1:]...)

	if len(room.members) == 0 {
		room.closed = true
		r.rooms.Del(roomID)
		r.log.Info("room deleted", "room", roomID)
		return
	}
	r.log.Info("peer left room", "room", roomID, "conn", memberID)
	for _, m := range room.members {
		m.Deliver(&protocol.Message{Type: protocol.MessageTypePeerLeft})
	}
}

// RoomOf returns the room the member is currently in.
func (r *Registry) RoomOf(memberID string) (string, bool) {
	return r.members.Get(memberID)
}

// Members returns the number of members currently in roomID.
func (r *Registry) Members(roomID string) int {
	room, ok := r.rooms.Get(roomID)
	if !ok {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members)
}

func (r *Registry) Stats() Stats {
	return Stats{
		Rooms:        r.rooms.Len(),
		Participants: r.members.Len(),
	}
}

// errorCode maps registry errors to the wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return protocol.ErrorCodeRoomFull
	case errors.Is(err, ErrNotInRoom):
		return protocol.ErrorCodeNotInRoom
	case errors.Is(err, ErrAlreadyInRoom):
		return protocol.ErrorCodeAlreadyInRoom
	default:
		return protocol.ErrorCodeBadRequest
	}
}
