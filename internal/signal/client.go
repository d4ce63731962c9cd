package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"telecare/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	reconnectMinDelay = time.Second
	reconnectMaxDelay = 30 * time.Second
)

// Handler consumes one relay event's payload.
type Handler func(data json.RawMessage)

// Client maintains one persistent connection to the relay. It re-registers
// its identity on every (re)connect and dispatches received events to the
// registered handlers. Delivery is at-most-once: events emitted while the
// connection is down are simply never received.
type Client struct {
	url      string
	identity RegisterPayload

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[Event]Handler
	closed   bool
	done     chan struct{}
}

// NewClient prepares a relay client for the given identity. Connect starts
// the connection loop.
func NewClient(url string, identity RegisterPayload) *Client {
	return &Client{
		url:      url,
		identity: identity,
		handlers: make(map[Event]Handler),
		done:     make(chan struct{}),
	}
}

// On registers the handler for an event. Handlers must be registered before
// Connect; they run on the read-loop goroutine.
func (c *Client) On(event Event, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// Connect starts the connection loop in the background: dial, register,
// read until failure, then redial with exponential backoff. Registration is
// idempotent on the relay side. The loop stops when ctx is cancelled or
// Close is called.
func (c *Client) Connect(ctx context.Context) {
	go c.run(ctx)
}

func (c *Client) run(ctx context.Context) {
	log := logger.For("signal.client").WithField("user_id", c.identity.UserID)
	delay := reconnectMinDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.WithError(err).WithField("retry_in", delay).Warn("relay dial failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}
		delay = reconnectMinDelay

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if err := c.Send(EventRegister, c.identity); err != nil {
			log.WithError(err).Warn("registration failed")
			_ = conn.Close()
			continue
		}
		log.Info("registered with relay")

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	log := logger.For("signal.client")
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("relay connection lost")
			}
			return
		}
		c.mu.Lock()
		h := c.handlers[env.Event]
		c.mu.Unlock()
		if h != nil {
			h(env.Data)
		}
	}
}

// Send marshals payload and writes it on the live connection.
func (c *Client) Send(event Event, payload any) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("relay not connected")
	}
	return c.conn.WriteJSON(env)
}

// Close tears the connection down and stops the reconnect loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		return c.conn.Close()
	}
	return nil
}
