/*
Package chat contains the real-time core of the server: the presence registry,
the delivery coordinator, and the per-connection WebSocket client.

This file defines the Client struct, representing an active WebSocket connection.
It manages the connection lifecycle, the read and write pumps, and dispatches the
typed event envelope to the Coordinator.
*/
package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"echochat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of an event sent by the client.
	maxEventBytes = 8192

	// MaxBodyBytes is the maximum allowed size (in bytes) for message text.
	MaxBodyBytes = 5000
)

// Client represents one active WebSocket connection. A user may hold several
// clients at once (multiple tabs or devices); presence tracks the set.
type Client struct {
	// id is the server-assigned transport-connection identifier.
	id string

	// coord routes every inbound event.
	coord *Coordinator

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// userID is the bound user, empty until a join-user event arrives.
	// Written only by the read pump; the Registry holds the authoritative copy.
	userID string

	// a buffered channel used to queue outbound event frames.
	send chan []byte

	// sendMu serializes queueing against channel close: fan-out goroutines may
	// hold a registry snapshot that still references this client after its
	// disconnect, so every send must observe the closed flag under the lock.
	sendMu sync.Mutex
	closed bool

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded WebSocket connection.
func NewClient(coord *Coordinator, wsConn *websocket.Conn) *Client {
	connID := uuid.NewString()

	return &Client{
		id:     connID,
		coord:  coord,
		conn:   wsConn,
		send:   make(chan []byte, 256),
		logger: logx.Logger().With().Str("conn_id", connID).Logger(),
	}
}

// ID returns the transport-connection identifier.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the bound user id, empty while anonymous.
func (c *Client) UserID() string {
	return c.userID
}

// ReadPump reads events from the WebSocket connection until it closes.
// It handles heartbeats (Pong) and performs cleanup upon connection closure.
// Running all dispatch on this single goroutine preserves per-connection
// event ordering.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxEventBytes)

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
				c.logger.Info().Err(err).Msg("Error reading event (client close/going away)")
			}
			break
		}

		c.dispatch(frame)
	}
}

// cleanupOnDisconnect is the single cancellation path: the coordinator removes
// this connection from presence bookkeeping and the socket is closed.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Str("user_id", c.userID).Msg("Connection cleanup starting.")

	c.coord.Disconnect(context.Background(), c)

	if err := c.conn.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Connection close error")
	}
}

// dispatch parses one inbound frame and routes it to the coordinator.
// A panic in a handler is contained here so one bad event cannot take
// down the process or the read pump.
func (c *Client) dispatch(frame []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error().Interface("panic", rec).Msg("Recovered from panic in event handler")
		}
	}()

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn().Err(err).Bytes("frame", frame).Msg("Client sent invalid JSON")
		return
	}

	ctx := context.Background()

	switch env.Type {
	case EvtJoinUser:
		var p JoinUserPayload
		// legacy clients send the bare user id instead of an object
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			if err := json.Unmarshal(env.Payload, &p.UserID); err != nil {
				c.logger.Warn().Err(err).Msg("Client sent invalid join-user payload")
				return
			}
		}
		c.coord.BindUser(ctx, c, p.UserID)

	case EvtJoinConversation:
		var p JoinConversationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid join-conversation payload")
			return
		}
		c.coord.JoinConversation(c, p)

	case EvtSendMessage:
		var p SendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid send-message payload")
			return
		}
		c.coord.SendMessage(ctx, c, p)

	case EvtGetMessages:
		var p GetMessagesPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid get-messages payload")
			return
		}
		c.coord.LoadHistory(ctx, c, p)

	case EvtDeleteMessage:
		var p DeleteMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid delete-message payload")
			return
		}
		c.coord.DeleteMessage(ctx, c, p)

	case EvtAddReaction:
		var p ReactionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid add-reaction payload")
			return
		}
		c.coord.AddReaction(ctx, c, p)

	case EvtRemoveReaction:
		var p ReactionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid remove-reaction payload")
			return
		}
		c.coord.RemoveReaction(ctx, c, p)

	case EvtUserActivity:
		var userID string
		if err := json.Unmarshal(env.Payload, &userID); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid user-activity payload")
			return
		}
		c.coord.RecordActivity(ctx, userID)

	case EvtUserHeartbeat:
		var userID string
		if err := json.Unmarshal(env.Payload, &userID); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid user-heartbeat payload")
			return
		}
		c.coord.RecordHeartbeat(ctx, userID)

	case EvtGetOnlineStatus:
		c.coord.SendOnlineStatuses(ctx, c)

	default:
		c.logger.Warn().Str("event_type", string(env.Type)).Msg("Client sent unsupported event type")
	}
}

// WritePump writes queued frames from the send channel to the WebSocket connection
// and keeps the connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !c.writeQueuedFrame(frame, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedFrame writes one frame pulled from the send channel.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedFrame(frame []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing frame")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// sendEvent marshals the payload into an envelope and queues it for delivery.
// A frame for a connection that already disconnected is dropped, and a full
// send channel means the client is too slow; neither case blocks or panics
// the caller.
func (c *Client) sendEvent(t EventType, payload any) {
	frame, err := marshalEnvelope(t, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", string(t)).Msg("Error marshaling event")
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warn().
			Str("event_type", string(t)).
			Int("queue_len", len(c.send)).
			Msg("Client send channel full, dropping event")
	}
}

// closeSend closes the send channel exactly once, signalling WritePump to finish.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
