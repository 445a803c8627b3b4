package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize fits the largest session descriptions browsers emit.
	DefaultMaxMessageSize = 64 * 1024

	// DefaultQueueSize is the number of outbound frames buffered per connection.
	DefaultQueueSize = 256
)

// ConnConfig tunes a relay connection.
type ConnConfig struct {
	MaxMessageSize int64
	QueueSize      int
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Conn is one participant's websocket connection to the relay.
type Conn struct {
	id       string
	ws       *websocket.Conn
	registry *Registry
	cfg      ConnConfig
	log      *slog.Logger

	send      chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps an upgraded websocket. Call Serve to run it.
func NewConn(ws *websocket.Conn, registry *Registry, cfg ConnConfig, logger *slog.Logger) *Conn {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Conn{
		id:       id,
		ws:       ws,
		registry: registry,
		cfg:      cfg,
		log:      logger.With("conn", id, "remote", ws.RemoteAddr().String()),
		send:     make(chan *protocol.Message, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Deliver queues msg for the write pump. A connection whose queue is full is
// disconnected rather than allowed to stall the room.
func (c *Conn) Deliver(msg *protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send queue full, disconnecting", "type", msg.Type)
		c.shutdown()
		return false
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Serve runs the write pump in a new goroutine and the read pump on the
// calling one. It returns once the connection is closed and the participant
// has left its room.
func (c *Conn) Serve() {
	c.log.Debug("connection opened")
	go c.writePump()
	c.readPump()
}

// readPump reads frames from the websocket and applies them to the registry.
// There is at most one reader per connection.
func (c *Conn) readPump() {
	defer func() {
		c.registry.Leave(c.id)
		c.shutdown()
		c.ws.Close()
		c.log.Debug("connection closed")
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}

		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Deliver(protocol.NewErrorMessage(protocol.ErrorCodeBadRequest, "malformed message"))
			continue
		}
		c.handle(&msg)
	}
}

func (c *Conn) handle(msg *protocol.Message) {
	var err error
	switch msg.Type {
	case protocol.MessageTypeJoinRoom:
		err = c.registry.Join(msg.RoomID, c)

	case protocol.MessageTypeCreateRoom:
		_, err = c.registry.Create(c)

	case protocol.MessageTypeSignal:
		roomID := msg.RoomID
		if roomID == "" {
			roomID, _ = c.registry.RoomOf(c.id)
		}
		if len(msg.Data) == 0 {
			err = errors.New("signal without data")
			break
		}
		err = c.registry.Relay(roomID, c.id, msg.Data)

	default:
		c.log.Debug("unknown message type", "type", msg.Type)
		c.Deliver(protocol.NewErrorMessage(protocol.ErrorCodeBadRequest, "unknown message type "+msg.Type))
		return
	}

	if err != nil {
		c.log.Debug("request refused", "type", msg.Type, "room", msg.RoomID, "error", err)
		c.Deliver(protocol.NewErrorMessage(errorCode(err), err.Error()))
	}
}

// writePump writes queued frames and keepalive pings. There is at most one
// writer per connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", "error", err)
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
