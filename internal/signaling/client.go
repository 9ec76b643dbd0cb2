package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/atharve16/MediMate/internal/identity"
	"github.com/atharve16/MediMate/internal/netutil"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Channel is a participant's link to the rendezvous service. Sends are
// attempted once; messages of one type from one sender arrive in order.
type Channel interface {
	// ID is the transport id the service assigned on connect.
	ID() string
	Send(msg *Message) error
	// Incoming is closed when the transport goes away; Err then says why.
	Incoming() <-chan *Message
	Err() error
	Close() error
}

// Client manages the WebSocket connection to the rendezvous service.
type Client struct {
	conn     *websocket.Conn
	id       string
	incoming chan *Message
	outgoing chan *Message
	done     chan struct{}
	flushed  chan struct{}
	logger   *slog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

var _ Channel = (*Client)(nil)

// Dial connects to serverURL and registers id. It returns once the service
// has confirmed the registration and assigned a transport id.
func Dial(ctx context.Context, serverURL string, id identity.Identity) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		NetDialContext:   netutil.DialContext,
		HandshakeTimeout: writeWait,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	conn.SetReadLimit(maxMessageSize)

	assigned, err := register(ctx, conn, id)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:     conn,
		id:       assigned,
		incoming: make(chan *Message, 64),
		outgoing: make(chan *Message, 64),
		done:     make(chan struct{}),
		flushed:  make(chan struct{}),
		logger:   slog.Default().With("component", "signaling", "id", assigned),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	c.logger.Debug("connected", "url", u.Redacted())
	return c, nil
}

// register performs the user:register / user:registered handshake
// synchronously, before the pumps start.
func register(ctx context.Context, conn *websocket.Conn, id identity.Identity) (string, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}

	msg, err := NewMessage(MessageTypeRegister, "", RegisterPayload{Email: id.Email, Name: id.Name})
	if err != nil {
		return "", err
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(msg); err != nil {
		return "", &TransportError{Op: "register", Err: err}
	}

	conn.SetReadDeadline(deadline)
	var ack Message
	if err := conn.ReadJSON(&ack); err != nil {
		return "", &TransportError{Op: "register", Err: err}
	}

	switch ack.Type {
	case MessageTypeRegistered:
		var p RegisteredPayload
		if err := ack.Decode(&p); err != nil || p.ID == "" {
			return "", ErrNotRegistered
		}
		return p.ID, nil
	case MessageTypeError:
		var p ErrorPayload
		_ = ack.Decode(&p)
		return "", fmt.Errorf("%w: %s", ErrRejected, p.Error)
	default:
		return "", fmt.Errorf("%w: got %q", ErrNotRegistered, ack.Type)
	}
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		close(c.incoming)
		c.shutdown()
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.setErr(&TransportError{Op: "read", Err: err})
			}
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic
// pings. On shutdown it flushes whatever is already queued before the close
// frame, so a final call:ended still has a chance to leave.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.flushed)
	}()

	for {
		select {
		case msg := <-c.outgoing:
			if err := c.write(msg); err != nil {
				c.setErr(&TransportError{Op: "write", Err: err})
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.setErr(&TransportError{Op: "ping", Err: err})
				c.shutdown()
				return
			}

		case <-c.done:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(msg *Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) drain() {
	for {
		select {
		case msg := <-c.outgoing:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ID returns the transport id assigned by the rendezvous service.
func (c *Client) ID() string {
	return c.id
}

// Send queues msg for the writer. It never retries.
func (c *Client) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel for receiving messages.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Err returns the transport failure that closed the channel, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close stops both pumps. Queued messages are flushed best effort.
func (c *Client) Close() error {
	c.shutdown()
	select {
	case <-c.flushed:
	case <-time.After(writeWait):
	}
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.logger.Debug("transport failed", "error", err)
}
