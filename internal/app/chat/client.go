/*
Package chat contains the delivery coordinator for the two-party messaging
core.

This file defines the Client struct, representing one authenticated
WebSocket connection. It manages the connection lifecycle, the read and
write pumps, and dispatch of inbound protocol operations to the
Coordinator.
*/
package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/app/bus"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// send channel capacity per connection.
	sendQueueSize = 256
)

// Client represents an active authenticated WebSocket connection. Exactly
// one user identity is associated with it for its lifetime.
type Client struct {
	coord *Coordinator

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// userID is the identity resolved at authentication time.
	userID string

	// send queues outbound frames for the write pump.
	send chan []byte

	// stop is closed exactly once when the connection winds down. The send
	// channel itself is never closed, so late pushes from in-flight
	// operations are dropped instead of panicking.
	stop     chan struct{}
	stopOnce sync.Once

	// sub is the connection's message-bus subscription, set by Attach.
	sub bus.Token

	logger zerolog.Logger
}

// NewClient constructs a Client for an already-authenticated connection.
func NewClient(coord *Coordinator, conn *websocket.Conn, userID string) *Client {
	return &Client{
		coord:  coord,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendQueueSize),
		stop:   make(chan struct{}),
		logger: logx.Logger().With().Str("client_id", userID).Logger(),
	}
}

// UserID returns the identity associated with the connection.
func (c *Client) UserID() string {
	return c.userID
}

// Push marshals an envelope and queues it for the write pump. It never
// blocks: a full queue or an already-stopped connection drops the frame
// and reports false.
func (c *Client) Push(event string, payload any) bool {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Error marshaling frame for client")
		return false
	}

	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn().Str("event", event).Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
		return false
	}
}

// SendError pushes an error event describing the failed operation.
func (c *Client) SendError(customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	c.Push(EventError, errorPayload(customErr.Message))
}

// Close terminates the connection. The read pump exit runs the full
// disconnect cleanup sequence.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// ReadPump reads frames from the WebSocket connection and dispatches them.
// It handles heartbeats (Pong) and performs cleanup when the connection
// closes for any reason.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading frame (client close/going away)")
			}
			break
		}

		c.processInbound(frame)
	}
}

// cleanupOnDisconnect runs the full disconnect sequence when the read pump
// terminates. It runs even when an in-flight operation has not completed.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.stopOnce.Do(func() { close(c.stop) })

	c.coord.Detach(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInbound parses one frame and dispatches the operation. Every
// inbound operation refreshes the user's last-activity timestamp.
func (c *Client) processInbound(frame []byte) {
	var inbound struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	if err := json.Unmarshal(frame, &inbound); err != nil {
		c.logger.Warn().Err(err).Bytes("frame", frame).Msg("Client sent invalid JSON")
		c.SendError(errs.NewError(errs.ErrInvalidParams))
		return
	}

	c.coord.presence.Touch(c.userID)

	switch inbound.Event {
	case EventGetHistory:
		var receiverID string
		if err := json.Unmarshal(inbound.Payload, &receiverID); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid getHistory payload")
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.coord.getHistory(c, receiverID)

	case EventSendMessage:
		var payload SendMessagePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid sendMessage payload")
			c.SendError(errs.NewError(errs.ErrMissingMessageFields))
			return
		}
		c.coord.sendMessage(c, payload)

	case EventMarkAsRead:
		var payload MarkAsReadPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid markAsRead payload")
			c.SendError(errs.NewError(errs.ErrMissingReadFields))
			return
		}
		c.coord.markAsRead(c, payload)

	case EventGetUserStatus:
		var targetID string
		if err := json.Unmarshal(inbound.Payload, &targetID); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid getUserStatus payload")
			c.SendError(errs.NewError(errs.ErrInvalidParams))
			return
		}
		c.coord.userStatus(c, targetID)

	default:
		c.logger.Warn().Str("event", inbound.Event).Msg("Client sent unsupported event")
	}
}

// WritePump writes queued frames to the WebSocket connection and keeps the
// heartbeat alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(websocket.TextMessage, frame) {
				return
			}

		case <-c.stop:
			c.writeFrame(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// writeFrame writes one frame with the write deadline applied. Returns
// false when the write pump should terminate.
func (c *Client) writeFrame(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			c.logger.Error().Err(err).Msg("Error writing frame")
		}
		return false
	}

	return true
}
