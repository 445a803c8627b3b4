package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/BioHazard786/Warpcall/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 64
)

var (
	ErrChannelClosed  = errors.New("signaling channel closed")
	ErrRoomFull       = errors.New("room is full")
	ErrSignalingError = errors.New("signaling error")
	ErrSendQueueFull  = errors.New("signaling send queue full")
)

// Client owns the participant's relay channel.
type Client struct {
	serverURL string
	log       *slog.Logger

	conn     *websocket.Conn
	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	done     chan struct{}
	closed   chan struct{}

	closeOnce sync.Once

	mu      sync.RWMutex
	roomID  string
	readErr error
	backlog []*protocol.Message
}

// NewClient creates a client for the relay at serverURL (ws:// or wss://).
func NewClient(serverURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		log:       logger.With("component", "signaling"),
		incoming:  make(chan *protocol.Message, queueSize),
		outgoing:  make(chan *protocol.Message, queueSize),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
}

// Connect dials the relay and starts the pumps.
func (c *Client) Connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ip, err := dns.LookupContext(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		var d net.Dialer
		return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
	}

	conn, _, err := dialer.DialContext(ctx, c.serverURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	c.log.Debug("connected", "url", c.serverURL)
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
		close(c.closed)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", "type", msg.Type, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.closed:
			return
		}
	}
}

// Send queues msg without blocking. It fails with ErrChannelClosed once the
// channel is closed.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Incoming returns the channel of inbound messages. It is closed when the
// relay channel closes.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Done is closed once the relay channel is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Err reports why the channel closed, or nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.closed:
	default:
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.readErr != nil {
		return fmt.Errorf("%w: %w", ErrChannelClosed, c.readErr)
	}
	return ErrChannelClosed
}

// RoomID returns the room joined last, or "".
func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

// Next returns the next inbound message, replaying anything held back while
// waiting for a join acknowledgement first.
func (c *Client) Next(ctx context.Context) (*protocol.Message, error) {
	c.mu.Lock()
	if len(c.backlog) > 0 {
		msg := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()

	select {
	case msg, ok := <-c.incoming:
		if !ok {
			return nil, c.Err()
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the relay channel. It is safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
