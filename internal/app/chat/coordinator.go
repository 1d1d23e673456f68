/*
Package chat contains the real-time core of the server: the presence registry,
the delivery coordinator, and the per-connection WebSocket client.

This file defines the Coordinator, which owns the presence bookkeeping and
routes messages, deletions, and reactions between the two parties of a
conversation. It depends on the message and user stores as external
collaborators; the in-memory registry stays authoritative for connectivity even
when presence writes fail.
*/
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"echochat/internal/app/store"
	"echochat/internal/pkg/logx"
)

// HistoryLimit bounds how many recent messages a history query returns.
const HistoryLimit = 100

// Coordinator accepts per-user socket connections, tracks multi-connection
// presence, relays messages between two parties, applies reactions, and applies
// two-tier deletion visibility.
type Coordinator struct {
	registry  *Registry
	messages  store.MessageStore
	users     store.UserStore
	activity  *userThrottle
	heartbeat *userThrottle
	logger    zerolog.Logger
}

// NewCoordinator constructs a Coordinator over the given stores.
func NewCoordinator(messages store.MessageStore, users store.UserStore) *Coordinator {
	return &Coordinator{
		registry:  NewRegistry(),
		messages:  messages,
		users:     users,
		activity:  newUserThrottle(ActivityWriteInterval),
		heartbeat: newUserThrottle(HeartbeatWriteInterval),
		logger:    logx.Logger().With().Str("component", "Coordinator").Logger(),
	}
}

// Reset forces every persisted user offline. Called once at process start:
// the connection registry is empty after a restart, so any persisted
// isOnline=true flag is stale by definition.
func (co *Coordinator) Reset(ctx context.Context) error {
	return co.users.MarkAllOffline(ctx)
}

// Registry exposes the presence registry, mainly for status queries.
func (co *Coordinator) Registry() *Registry {
	return co.registry
}

// Connect registers a new anonymous connection.
func (co *Coordinator) Connect(c *Client) {
	co.registry.Add(c)
	co.logger.Info().Str("conn_id", c.id).Msg("Connection registered.")
}

// BindUser associates the connection with a user and, when this is the user's
// first live connection, marks them online in the store and broadcasts the
// status change to all connected parties. Idempotent for repeated binds of the
// same connection.
func (co *Coordinator) BindUser(ctx context.Context, c *Client, userID string) {
	if userID == "" {
		c.logger.Warn().Msg("join-user with empty user id ignored")
		return
	}

	first := co.registry.Bind(c.id, userID)
	c.userID = userID

	if !first {
		return
	}

	now := time.Now()

	// Best-effort: the registry stays authoritative even when this write fails.
	if err := co.users.SetPresence(ctx, userID, true, now); err != nil {
		co.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist online status")
	}

	co.broadcastStatus(userID, "online", now)
	co.logger.Info().Str("user_id", userID).Str("conn_id", c.id).Msg("User online.")
}

// Disconnect removes the connection from presence bookkeeping. Only when the
// user's last connection goes away do they transition to offline; a user with
// another live tab or device stays online.
func (co *Coordinator) Disconnect(ctx context.Context, c *Client) {
	userID, last := co.registry.Remove(c.id)
	c.closeSend()

	if !last || userID == "" {
		return
	}

	now := time.Now()

	if err := co.users.SetPresence(ctx, userID, false, now); err != nil {
		co.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist offline status")
	}

	co.broadcastStatus(userID, "offline", now)
	co.logger.Info().Str("user_id", userID).Str("conn_id", c.id).Msg("User offline.")
}

// JoinConversation subscribes the connection to a conversation room. Delivery
// does not depend on it (fan-out always covers both users' connection sets),
// but room membership is kept for clients that rely on the legacy path.
func (co *Coordinator) JoinConversation(c *Client, p JoinConversationPayload) {
	co.registry.JoinRoom(c.id, p.Room)
}

// broadcastStatus pushes a user-status-changed event to every connected client.
func (co *Coordinator) broadcastStatus(userID, status string, at time.Time) {
	payload := StatusChangedPayload{
		UserID:       userID,
		Status:       status,
		LastActivity: at.UnixMilli(),
	}
	for _, c := range co.registry.All() {
		c.sendEvent(EvtUserStatusChanged, payload)
	}
}

// SendMessage persists the message and fans it out to every connection of both
// parties. On persistence failure only the sender hears about it and nothing is
// delivered.
func (co *Coordinator) SendMessage(ctx context.Context, c *Client, p SendMessagePayload) {
	if p.SenderID == "" || p.ReceiverID == "" {
		c.sendEvent(EvtSendError, SendErrorPayload{
			CorrelationID: p.CorrelationID,
			Error:         "sender and receiver are required",
			ErrorType:     ErrTypeValidation,
		})
		return
	}
	if len(p.Text) > MaxBodyBytes {
		c.sendEvent(EvtSendError, SendErrorPayload{
			CorrelationID: p.CorrelationID,
			Error:         "message is too long",
			ErrorType:     ErrTypeValidation,
		})
		return
	}

	rec, err := co.messages.Create(ctx, p.SenderID, p.ReceiverID, p.Text)
	if err != nil {
		co.logger.Error().Err(err).
			Str("sender_id", p.SenderID).
			Str("receiver_id", p.ReceiverID).
			Msg("Failed to persist message")

		c.sendEvent(EvtSendError, SendErrorPayload{
			CorrelationID: p.CorrelationID,
			Error:         "failed to save message",
			ErrorType:     ErrTypeStoreWrite,
		})
		return
	}

	room := ConversationKey(rec.SenderID, rec.ReceiverID)
	payload := ReceiveMessagePayload{
		ID:         rec.ID,
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Text:       rec.Body,
		Timestamp:  rec.CreatedAt.UnixMilli(),
	}
	for _, target := range co.registry.Recipients(room, rec.SenderID, rec.ReceiverID) {
		target.sendEvent(EvtReceiveMessage, payload)
	}

	// Ack only the originating connection so the client can reconcile its
	// optimistic local copy.
	c.sendEvent(EvtMessageSent, MessageSentPayload{
		CorrelationID: p.CorrelationID,
		ID:            rec.ID,
		Timestamp:     rec.CreatedAt.UnixMilli(),
	})
}

// History returns the visible conversation slice for the viewer. Shared by the
// real-time get-messages event and the REST history endpoint so the deletion
// filter is applied identically on both paths.
func (co *Coordinator) History(ctx context.Context, viewerID, userA, userB string) ([]store.MessageRecord, error) {
	return co.messages.History(ctx, viewerID, userA, userB, HistoryLimit)
}

// LoadHistory serves a get-messages event. The requester is the payload sender.
func (co *Coordinator) LoadHistory(ctx context.Context, c *Client, p GetMessagesPayload) {
	records, err := co.History(ctx, p.SenderID, p.SenderID, p.ReceiverID)
	if err != nil {
		co.logger.Error().Err(err).
			Str("viewer_id", p.SenderID).
			Msg("Failed to load message history")

		c.sendEvent(EvtMessagesLoaded, MessagesLoadedPayload{
			Messages:  []MessageView{},
			Error:     "failed to load messages",
			ErrorType: ErrTypeStoreRead,
		})
		return
	}

	c.sendEvent(EvtMessagesLoaded, MessagesLoadedPayload{Messages: MessageViews(records)})
}

// requesterID resolves who is asking: the bound identity when available,
// falling back to the id the payload declares.
func requesterID(c *Client, declared string) string {
	if c.userID != "" {
		return c.userID
	}
	return declared
}

// DeleteMessage applies two-tier deletion. Transitions are monotonic: nothing
// ever restores visibility. A missing message is treated as already deleted
// (idempotent success), since deletion requests racing a completed deletion are
// expected. A target id that was never persisted (a client-local optimistic id)
// is rejected distinctly so the caller knows to wait rather than retry.
func (co *Coordinator) DeleteMessage(ctx context.Context, c *Client, p DeleteMessagePayload) {
	if p.DeleteType != DeleteForMe && p.DeleteType != DeleteForEveryone {
		c.sendEvent(EvtDeleteError, DeleteErrorPayload{
			MessageID: p.MessageID,
			Error:     "unknown delete type",
			ErrorType: ErrTypeValidation,
		})
		return
	}

	// Server-assigned ids are UUIDs; optimistic correlation ids are not.
	if _, err := uuid.Parse(p.MessageID); err != nil {
		c.sendEvent(EvtDeleteError, DeleteErrorPayload{
			MessageID: p.MessageID,
			Error:     "message has not been saved yet",
			ErrorType: ErrTypeNotYetPersisted,
		})
		return
	}

	requester := requesterID(c, p.SenderID)
	now := time.Now()

	rec, err := co.messages.FindByID(ctx, p.MessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			co.confirmDeletion(c, p, now)
			return
		}

		co.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Failed to load message for deletion")
		c.sendEvent(EvtDeleteError, DeleteErrorPayload{
			MessageID: p.MessageID,
			Error:     "failed to load message",
			ErrorType: ErrTypeStoreRead,
		})
		return
	}

	switch p.DeleteType {
	case DeleteForMe:
		co.deleteForMe(ctx, c, rec, requester, now)
	case DeleteForEveryone:
		co.deleteForEveryone(ctx, c, rec, requester, now)
	}
}

// confirmDeletion reports idempotent success for a message that is already gone.
// Only the requester's connections hear it: any other party already saw the
// broadcast from the deletion that won the race.
func (co *Coordinator) confirmDeletion(c *Client, p DeleteMessagePayload, now time.Time) {
	if p.DeleteType == DeleteForEveryone {
		c.sendEvent(EvtMessageDeletedForEveryone, DeletedForEveryonePayload{
			MessageID:  p.MessageID,
			SenderID:   p.SenderID,
			ReceiverID: p.ReceiverID,
			Timestamp:  now.UnixMilli(),
		})
		return
	}

	c.sendEvent(EvtMessageDeletedForMe, DeletedForMePayload{
		MessageID: p.MessageID,
		Timestamp: now.UnixMilli(),
	})
}

// deleteForMe hides the message from the requester only.
func (co *Coordinator) deleteForMe(ctx context.Context, c *Client, rec *store.MessageRecord, requester string, now time.Time) {
	if requester != rec.SenderID && requester != rec.ReceiverID {
		c.sendEvent(EvtDeleteError, DeleteErrorPayload{
			MessageID: rec.ID,
			Error:     "you are not part of this conversation",
			ErrorType: ErrTypeAuthorization,
		})
		return
	}

	if err := co.messages.AppendDeletedFor(ctx, rec.ID, requester); err != nil && !errors.Is(err, store.ErrNotFound) {
		co.logger.Error().Err(err).Str("message_id", rec.ID).Msg("Failed to persist delete-for-me")
		c.sendEvent(EvtDeleteError, DeleteErrorPayload{
			MessageID: rec.ID,
			Error:     "failed to delete message",
			ErrorType: ErrTypeStoreWrite,
		})
		return
	}

	// Every connection of the requester updates; the other party is unaffected.
	payload := DeletedForMePayload{MessageID: rec.ID, Timestamp: now.UnixMilli()}
	targets := co.registry.ClientsForUser(requester)
	if len(targets) == 0 {
		c.sendEvent(EvtMessageDeletedForMe, payload)
		return
	}
	for _, target := range targets {
		target.sendEvent(EvtMessageDeletedForMe, payload)
	}
}

// deleteForEveryone hides the message from both parties on all their devices.
// The fan-out happens synchronously so the message disappears everywhere at once.
func (co *Coordinator) deleteForEveryone(ctx context.Context, c *Client, rec *store.MessageRecord, requester string, now time.Time) {
	if requester != rec.SenderID {
		c.sendEvent(EvtDeleteError, DeleteErrorPayload{
			MessageID: rec.ID,
			Error:     "only the sender can delete this message for everyone",
			ErrorType: ErrTypeAuthorization,
		})
		return
	}

	viewers := []string{rec.SenderID, rec.ReceiverID}
	if err := co.messages.MarkDeletedForEveryone(ctx, rec.ID, viewers); err != nil && !errors.Is(err, store.ErrNotFound) {
		co.logger.Error().Err(err).Str("message_id", rec.ID).Msg("Failed to persist delete-for-everyone")
		c.sendEvent(EvtDeleteError, DeleteErrorPayload{
			MessageID: rec.ID,
			Error:     "failed to delete message",
			ErrorType: ErrTypeStoreWrite,
		})
		return
	}

	room := ConversationKey(rec.SenderID, rec.ReceiverID)
	payload := DeletedForEveryonePayload{
		MessageID:  rec.ID,
		SenderID:   rec.SenderID,
		ReceiverID: rec.ReceiverID,
		Timestamp:  now.UnixMilli(),
	}
	for _, target := range co.registry.Recipients(room, rec.SenderID, rec.ReceiverID) {
		target.sendEvent(EvtMessageDeletedForEveryone, payload)
	}
}

// AddReaction records the reactor's reaction (last write wins) and pushes the
// full updated mapping to every connection of both parties. An off-list symbol
// is dropped with a log line, per the validation policy for this event.
func (co *Coordinator) AddReaction(ctx context.Context, c *Client, p ReactionPayload) {
	if !IsAllowedReaction(p.Symbol) {
		co.logger.Warn().
			Str("message_id", p.MessageID).
			Str("reactor_id", p.ReactorID).
			Str("symbol", p.Symbol).
			Msg("Dropping reaction with off-list symbol")
		return
	}
	if _, err := uuid.Parse(p.MessageID); err != nil {
		co.logger.Warn().Str("message_id", p.MessageID).Msg("Dropping reaction for unpersisted message id")
		return
	}

	rec, err := co.messages.SetReaction(ctx, p.MessageID, p.ReactorID, p.Symbol)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			co.logger.Warn().Str("message_id", p.MessageID).Msg("Reaction targeted a missing message")
			return
		}
		co.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Failed to persist reaction")
		return
	}

	co.pushReactions(EvtReactionAdded, rec, p.ReactorID)
}

// RemoveReaction clears the reactor's entry if present (idempotent) and pushes
// the full updated mapping to every connection of both parties.
func (co *Coordinator) RemoveReaction(ctx context.Context, c *Client, p ReactionPayload) {
	if _, err := uuid.Parse(p.MessageID); err != nil {
		co.logger.Warn().Str("message_id", p.MessageID).Msg("Dropping reaction removal for unpersisted message id")
		return
	}

	rec, err := co.messages.ClearReaction(ctx, p.MessageID, p.ReactorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return
		}
		co.logger.Error().Err(err).Str("message_id", p.MessageID).Msg("Failed to clear reaction")
		return
	}

	co.pushReactions(EvtReactionRemoved, rec, p.ReactorID)
}

func (co *Coordinator) pushReactions(t EventType, rec *store.MessageRecord, reactorID string) {
	room := ConversationKey(rec.SenderID, rec.ReceiverID)
	payload := ReactionUpdatePayload{
		MessageID: rec.ID,
		ReactorID: reactorID,
		Reactions: rec.Reactions,
	}
	for _, target := range co.registry.Recipients(room, rec.SenderID, rec.ReceiverID) {
		target.sendEvent(t, payload)
	}
}

// RecordActivity refreshes the user's last-activity timestamp, at most once per
// activity window. Calls inside the window are silently dropped.
func (co *Coordinator) RecordActivity(ctx context.Context, userID string) {
	if userID == "" || !co.activity.Allow(userID) {
		return
	}

	if err := co.users.TouchActivity(ctx, userID, time.Now()); err != nil {
		co.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist activity")
	}
}

// RecordHeartbeat refreshes last-activity from the lower-priority liveness
// signal, on its own coarser window and without any status broadcast.
func (co *Coordinator) RecordHeartbeat(ctx context.Context, userID string) {
	if userID == "" || !co.heartbeat.Allow(userID) {
		return
	}

	if err := co.users.TouchActivity(ctx, userID, time.Now()); err != nil {
		co.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to persist heartbeat")
	}
}

// OnlineStatuses reports every known user's status. Online is derived from the
// live connection set; only lastActivity comes from the possibly-stale store.
func (co *Coordinator) OnlineStatuses(ctx context.Context) ([]UserStatus, error) {
	rows, err := co.users.ListPresence(ctx)
	if err != nil {
		return nil, err
	}

	online := co.registry.OnlineSet()
	statuses := make([]UserStatus, 0, len(rows))
	for _, row := range rows {
		_, isOnline := online[row.UserID]
		statuses = append(statuses, UserStatus{
			UserID:       row.UserID,
			Online:       isOnline,
			LastActivity: row.LastActivity.UnixMilli(),
		})
	}
	return statuses, nil
}

// SendOnlineStatuses answers a get-online-status event on the requesting connection.
func (co *Coordinator) SendOnlineStatuses(ctx context.Context, c *Client) {
	statuses, err := co.OnlineStatuses(ctx)
	if err != nil {
		co.logger.Error().Err(err).Msg("Failed to load online statuses")
		c.sendEvent(EvtOnlineStatus, OnlineStatusPayload{UserStatuses: []UserStatus{}})
		return
	}

	c.sendEvent(EvtOnlineStatus, OnlineStatusPayload{UserStatuses: statuses})
}
