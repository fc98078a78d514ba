package connection

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tacticsrpg/pkg/protocol"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Config bounds the timing and backpressure behavior of every Connection,
// sourced from pkg/config.
type Config struct {
	AuthHandshakeTimeout time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
	OutboxSize           int
}

// Router hands an authenticated Connection's frames to the rest of the
// system. Implemented by pkg/server using a pkg/session.Registry; kept as
// an interface here so pkg/connection never imports pkg/session.
type Router interface {
	// Authenticate verifies token and returns the stable user id it names,
	// or an error if the token is invalid.
	Authenticate(token string) (userID string, err error)
	// Dispatch routes one post-auth frame from conn to its handler
	// (Session Registry for create/join, a Session Actor's inbox
	// otherwise). A returned error is reported to the sender only.
	Dispatch(conn *Connection, env protocol.Envelope) error
	// Disconnect notifies any session conn was attached to that its
	// connection was lost.
	Disconnect(conn *Connection)
}

// Connection is one logical client attachment: authentication handshake,
// framed read/write pumps, keepalive, and a bounded outbound queue.
type Connection struct {
	id        string
	transport Transport
	router    Router
	cfg       Config

	userID atomic.Value // string

	send      chan protocol.Envelope
	done      chan struct{}
	closeOnce sync.Once

	lastSeq      int64
	lastSeqInit  bool
	lastPongMu   sync.Mutex
	lastPongTime time.Time

	closeReason atomic.Value // protocol.Code
}

// New constructs a Connection around transport. id should be a fresh UUID
// minted by the caller (the server's HTTP handler, typically).
func New(id string, transport Transport, router Router, cfg Config) *Connection {
	c := &Connection{
		id:        id,
		transport: transport,
		router:    router,
		cfg:       cfg,
		send:      make(chan protocol.Envelope, cfg.OutboxSize),
		done:      make(chan struct{}),
	}
	c.userID.Store("")
	c.closeReason.Store(protocol.Code(""))
	transport.SetPongHandler(func(string) error {
		c.lastPongMu.Lock()
		c.lastPongTime = time.Now()
		c.lastPongMu.Unlock()
		return nil
	})
	return c
}

// ID returns the connection's identifier.
func (c *Connection) ID() string { return c.id }

// UserID returns the authenticated user id, or "" before the handshake completes.
func (c *Connection) UserID() string {
	return c.userID.Load().(string)
}

// Serve runs the connection's full lifecycle: auth handshake, then the
// read pump, write pump and keepalive loop concurrently. It blocks until
// the connection closes for any reason and returns the close reason code.
func (c *Connection) Serve() protocol.Code {
	userID, reason, ok := c.handshake()
	if !ok {
		c.closeTransport()
		return reason
	}
	c.userID.Store(userID)
	if err := c.transport.SetReadDeadline(time.Time{}); err != nil {
		logrus.WithError(err).Warn("connection: failed to clear handshake deadline")
	}
	c.lastPongMu.Lock()
	c.lastPongTime = time.Now()
	c.lastPongMu.Unlock()

	c.Enqueue(mustEncode(protocol.TypeHello, protocol.HelloPayload{
		UserID:       userID,
		Capabilities: []string{"move", "attack", "end_turn", "chat", "dm_command"},
	}, 0))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writePump() }()
	go func() { defer wg.Done(); c.keepalivePump() }()

	c.readPump()
	wg.Wait()

	c.router.Disconnect(c)
	reason, _ = c.closeReason.Load().(protocol.Code)
	return reason
}

// handshake reads exactly one frame, enforcing it is a valid auth frame
// within AuthHandshakeTimeout.
func (c *Connection) handshake() (userID string, reason protocol.Code, ok bool) {
	if err := c.transport.SetReadDeadline(time.Now().Add(c.cfg.AuthHandshakeTimeout)); err != nil {
		logrus.WithError(err).Warn("connection: failed to set handshake deadline")
	}

	_, raw, err := c.transport.ReadMessage()
	if err != nil {
		return "", protocol.CodeAuthTimeout, false
	}

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type != protocol.TypeAuth {
		return "", protocol.CodeAuthFailed, false
	}

	var payload protocol.AuthPayload
	if err := protocol.DecodePayload(env, &payload); err != nil {
		return "", protocol.CodeAuthFailed, false
	}

	userID, err = c.router.Authenticate(payload.Token)
	if err != nil {
		return "", protocol.CodeAuthFailed, false
	}

	c.lastSeq = env.Seq
	c.lastSeqInit = true

	return userID, "", true
}

// readPump decodes inbound frames and dispatches them until the transport
// errors or a protocol violation closes the connection.
func (c *Connection) readPump() {
	for {
		_, raw, err := c.transport.ReadMessage()
		if err != nil {
			c.closeWith("")
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError(protocol.CodeProtocol, "malformed envelope", 0, 0)
			c.closeWith(protocol.CodeProtocol)
			return
		}

		if !protocol.ClientTypes[env.Type] {
			c.sendError(protocol.CodeProtocol, fmt.Sprintf("unknown frame type %q", env.Type), 0, env.Seq)
			c.closeWith(protocol.CodeProtocol)
			return
		}

		if c.lastSeqInit && env.Seq <= c.lastSeq {
			c.sendError(protocol.CodeProtocol, "non-increasing seq", 0, env.Seq)
			c.closeWith(protocol.CodeProtocol)
			return
		}
		c.lastSeq = env.Seq
		c.lastSeqInit = true

		if err := c.router.Dispatch(c, env); err != nil {
			logrus.WithError(err).WithField("type", env.Type).Debug("connection: dispatch returned error")
		}
	}
}

// writePump drains the outbound queue to the transport in strict
// emission order until the connection closes.
func (c *Connection) writePump() {
	for {
		select {
		case <-c.done:
			// Flush frames already queued (e.g. hello, or the error that
			// preceded the close) so none are dropped by the race with done.
			for {
				select {
				case env := <-c.send:
					data, err := json.Marshal(env)
					if err != nil {
						continue
					}
					if c.transport.WriteMessage(websocket.TextMessage, data) != nil {
						return
					}
				default:
					return
				}
			}
		case env, ok := <-c.send:
			if !ok {
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				logrus.WithError(err).Error("connection: failed to marshal outbound envelope")
				continue
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, data); err != nil {
				c.closeWith("")
				return
			}
		}
	}
}

// keepalivePump pings on PingInterval and closes the connection with
// IDLE_TIMEOUT if no pong arrives within PongTimeout of the most recent ping.
func (c *Connection) keepalivePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			pingSentAt := time.Now()
			if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith("")
				return
			}

			select {
			case <-c.done:
				return
			case <-time.After(c.cfg.PongTimeout):
			}

			c.lastPongMu.Lock()
			lastPong := c.lastPongTime
			c.lastPongMu.Unlock()

			if lastPong.Before(pingSentAt) {
				c.closeWith(protocol.CodeIdleTimeout)
				return
			}
		}
	}
}

// Enqueue appends env to the outbound queue without blocking. If the queue
// is full, the connection is closed with SLOW_CONSUMER.
func (c *Connection) Enqueue(env protocol.Envelope) {
	select {
	case c.send <- env:
	default:
		logrus.WithField("connection_id", c.id).Warn("connection: outbound queue full, closing as slow consumer")
		c.closeWith(protocol.CodeSlowConsumer)
	}
}

// sendError enqueues a protocol-level error response to this connection only.
func (c *Connection) sendError(code protocol.Code, message string, retryAfterMS, correlationSeq int64) {
	c.Enqueue(mustEncode(protocol.TypeError, protocol.NewError(code, message, retryAfterMS, correlationSeq), 0))
}

// SendError is the exported form used by the session/DM layers to report a
// validation error back to the originating connection only.
func (c *Connection) SendError(code protocol.Code, message string, retryAfterMS, correlationSeq int64) {
	c.sendError(code, message, retryAfterMS, correlationSeq)
}

// Close closes the connection from outside the read pump (e.g. a DM kick).
func (c *Connection) Close(reason protocol.Code) {
	c.closeWith(reason)
}

func (c *Connection) closeWith(reason protocol.Code) {
	c.closeOnce.Do(func() {
		if reason != "" {
			c.closeReason.Store(reason)
			logrus.WithFields(logrus.Fields{"connection_id": c.id, "reason": reason}).Info("connection closed")
		}
		close(c.done)
		c.closeTransport()
	})
}

func (c *Connection) closeTransport() {
	if err := c.transport.Close(); err != nil {
		logrus.WithError(err).Debug("connection: error closing transport")
	}
}

func mustEncode(typ protocol.Type, payload interface{}, seq int64) protocol.Envelope {
	env, err := protocol.Encode(typ, payload, seq, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).Error("connection: failed to encode outbound envelope")
		return protocol.Envelope{Type: typ, Seq: seq, TS: time.Now().UnixMilli()}
	}
	return env
}
