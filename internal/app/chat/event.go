/*
Package chat contains the real-time core of the server: the presence registry,
the delivery coordinator, and the per-connection WebSocket client.

This file defines the typed event envelope exchanged with clients and the
payload structures for every inbound and outbound event.
*/
package chat

import (
	"encoding/json"
	"fmt"

	"echochat/internal/app/store"
)

// EventType names an event in the wire protocol.
type EventType string

// Inbound events (client to server).
const (
	EvtJoinUser         EventType = "join-user"
	EvtJoinConversation EventType = "join-conversation"
	EvtSendMessage      EventType = "send-message"
	EvtGetMessages      EventType = "get-messages"
	EvtDeleteMessage    EventType = "delete-message"
	EvtAddReaction      EventType = "add-reaction"
	EvtRemoveReaction   EventType = "remove-reaction"
	EvtUserActivity     EventType = "user-activity"
	EvtUserHeartbeat    EventType = "user-heartbeat"
	EvtGetOnlineStatus  EventType = "get-online-status"
)

// Outbound events (server to client).
const (
	EvtUserStatusChanged         EventType = "user-status-changed"
	EvtReceiveMessage            EventType = "receive-message"
	EvtMessageSent               EventType = "message-sent"
	EvtMessageDeletedForEveryone EventType = "message-deleted-for-everyone"
	EvtMessageDeletedForMe       EventType = "message-deleted-for-me"
	EvtReactionAdded             EventType = "reaction-added"
	EvtReactionRemoved           EventType = "reaction-removed"
	EvtDeleteError               EventType = "delete-error"
	EvtSendError                 EventType = "send-error"
	EvtOnlineStatus              EventType = "online-status"
	EvtMessagesLoaded            EventType = "messages-loaded"
)

// Wire error type names carried in error payloads.
const (
	ErrTypeAuthorization   = "AuthorizationError"
	ErrTypeNotFound        = "NotFoundError"
	ErrTypeNotYetPersisted = "NotYetPersistedError"
	ErrTypeStoreWrite      = "StoreWriteError"
	ErrTypeStoreRead       = "StoreReadError"
	ErrTypeValidation      = "ValidationError"
)

// Envelope is the framing for every event in either direction.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// marshalEnvelope builds the wire bytes for an outbound event.
func marshalEnvelope(t EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// Inbound payloads.

type JoinUserPayload struct {
	UserID string `json:"userId"`
}

type JoinConversationPayload struct {
	Room   string `json:"room"`
	UserID string `json:"userId"`
}

type SendMessagePayload struct {
	SenderID      string `json:"senderId"`
	ReceiverID    string `json:"receiverId"`
	Text          string `json:"text"`
	CorrelationID string `json:"correlationId"`
}

type GetMessagesPayload struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// Delete tiers accepted in DeleteMessagePayload.DeleteType.
const (
	DeleteForMe       = "me"
	DeleteForEveryone = "everyone"
)

type DeleteMessagePayload struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	DeleteType string `json:"deleteType"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	ReactorID string `json:"reactorId"`
	Symbol    string `json:"symbol,omitempty"`
}

// Outbound payloads. Timestamps are Unix milliseconds.

type StatusChangedPayload struct {
	UserID       string `json:"userId"`
	Status       string `json:"status"`
	LastActivity int64  `json:"lastActivity"`
}

type ReceiveMessagePayload struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

type MessageSentPayload struct {
	CorrelationID string `json:"correlationId"`
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"`
}

type DeletedForEveryonePayload struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Timestamp  int64  `json:"timestamp"`
}

type DeletedForMePayload struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

// ReactionUpdatePayload carries the full reactor-to-symbol mapping rather than a
// delta, so clients never have to reconcile partial updates.
type ReactionUpdatePayload struct {
	MessageID string            `json:"messageId"`
	ReactorID string            `json:"reactorId"`
	Reactions map[string]string `json:"reactions"`
}

type DeleteErrorPayload struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
}

type SendErrorPayload struct {
	CorrelationID string `json:"correlationId"`
	Error         string `json:"error"`
	ErrorType     string `json:"errorType"`
}

// UserStatus is one entry of an online-status query response. Online is derived
// from the live connection set, never from the persisted flag.
type UserStatus struct {
	UserID       string `json:"userId"`
	Online       bool   `json:"online"`
	LastActivity int64  `json:"lastActivity"`
}

type OnlineStatusPayload struct {
	UserStatuses []UserStatus `json:"userStatuses"`
}

// MessageView is the client-facing shape of a stored message.
type MessageView struct {
	ID         string            `json:"id"`
	SenderID   string            `json:"senderId"`
	ReceiverID string            `json:"receiverId"`
	Text       string            `json:"text"`
	Reactions  map[string]string `json:"reactions,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

type MessagesLoadedPayload struct {
	Messages  []MessageView `json:"messages"`
	Error     string        `json:"error,omitempty"`
	ErrorType string        `json:"errorType,omitempty"`
}

// MessageViews converts stored records into their client-facing shape.
func MessageViews(records []store.MessageRecord) []MessageView {
	views := make([]MessageView, 0, len(records))
	for _, rec := range records {
		views = append(views, MessageView{
			ID:         rec.ID,
			SenderID:   rec.SenderID,
			ReceiverID: rec.ReceiverID,
			Text:       rec.Body,
			Reactions:  rec.Reactions,
			Timestamp:  rec.CreatedAt.UnixMilli(),
		})
	}
	return views
}

// allowedReactions is the fixed symbol allow-list; one reaction per user per message.
var allowedReactions = map[string]struct{}{
	"👍": {},
	"❤️": {},
	"😂": {},
	"😮": {},
	"😢": {},
	"🙏": {},
}

// IsAllowedReaction reports whether the symbol is on the reaction allow-list.
func IsAllowedReaction(symbol string) bool {
	_, ok := allowedReactions[symbol]
	return ok
}
