package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"echochat/internal/app/store"
)

// memMessageStore is an in-memory MessageStore used by coordinator tests.
type memMessageStore struct {
	mu         sync.Mutex
	records    map[string]*store.MessageRecord
	order      []string
	failCreate bool
	failFind   bool
	failHist   bool
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{records: make(map[string]*store.MessageRecord)}
}

func copyRecord(rec *store.MessageRecord) *store.MessageRecord {
	cp := *rec
	cp.Reactions = make(map[string]string, len(rec.Reactions))
	for k, v := range rec.Reactions {
		cp.Reactions[k] = v
	}
	cp.DeletedFor = append([]string(nil), rec.DeletedFor...)
	return &cp
}

func (m *memMessageStore) Create(_ context.Context, senderID, receiverID, body string) (*store.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreate {
		return nil, errors.New("store down")
	}

	rec := &store.MessageRecord{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Reactions:  map[string]string{},
		CreatedAt:  time.Now(),
	}
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return copyRecord(rec), nil
}

func (m *memMessageStore) FindByID(_ context.Context, id string) (*store.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFind {
		return nil, errors.New("store down")
	}

	rec, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *memMessageStore) AppendDeletedFor(_ context.Context, id, viewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, v := range rec.DeletedFor {
		if v == viewerID {
			return nil
		}
	}
	rec.DeletedFor = append(rec.DeletedFor, viewerID)
	return nil
}

func (m *memMessageStore) MarkDeletedForEveryone(_ context.Context, id string, viewers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.DeletedForEveryone = true
	for _, viewer := range viewers {
		present := false
		for _, v := range rec.DeletedFor {
			if v == viewer {
				present = true
				break
			}
		}
		if !present {
			rec.DeletedFor = append(rec.DeletedFor, viewer)
		}
	}
	return nil
}

func (m *memMessageStore) SetReaction(_ context.Context, id, reactorID, symbol string) (*store.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.Reactions[reactorID] = symbol
	return copyRecord(rec), nil
}

func (m *memMessageStore) ClearReaction(_ context.Context, id, reactorID string) (*store.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(rec.Reactions, reactorID)
	return copyRecord(rec), nil
}

func (m *memMessageStore) History(_ context.Context, viewerID, userA, userB string, limit int) ([]store.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failHist {
		return nil, errors.New("store down")
	}

	var out []store.MessageRecord
	for _, id := range m.order {
		rec := m.records[id]
		pair := (rec.SenderID == userA && rec.ReceiverID == userB) ||
			(rec.SenderID == userB && rec.ReceiverID == userA)
		if !pair || rec.DeletedForEveryone {
			continue
		}
		hidden := false
		for _, v := range rec.DeletedFor {
			if v == viewerID {
				hidden = true
				break
			}
		}
		if hidden {
			continue
		}
		out = append(out, *copyRecord(rec))
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// get returns the live stored record for direct assertions.
func (m *memMessageStore) get(t *testing.T, id string) store.MessageRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	require.True(t, ok, "message %s not in store", id)
	return *copyRecord(rec)
}

// memUserStore is an in-memory UserStore covering the presence surface the
// coordinator uses. The account methods are never reached from these tests.
type memUserStore struct {
	mu            sync.Mutex
	presence      map[string]store.PresenceRow
	touches       map[string]int
	presenceCalls []string
	allOffline    int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		presence: make(map[string]store.PresenceRow),
		touches:  make(map[string]int),
	}
}

func (m *memUserStore) Create(context.Context, string, string, string) (*store.UserRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *memUserStore) FindByID(context.Context, string) (*store.UserRecord, error) {
	return nil, store.ErrNotFound
}

func (m *memUserStore) FindByUsername(context.Context, string) (*store.UserRecord, error) {
	return nil, store.ErrNotFound
}

func (m *memUserStore) SetPresence(_ context.Context, id string, online bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.presence[id] = store.PresenceRow{UserID: id, IsOnline: online, LastActivity: at}
	state := "offline"
	if online {
		state = "online"
	}
	m.presenceCalls = append(m.presenceCalls, id+":"+state)
	return nil
}

func (m *memUserStore) TouchActivity(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touches[id]++
	row := m.presence[id]
	row.UserID = id
	row.IsOnline = true
	row.LastActivity = at
	m.presence[id] = row
	return nil
}

func (m *memUserStore) UpdateProfile(context.Context, string, string, string) (*store.UserRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *memUserStore) UpdatePassword(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (m *memUserStore) ListPresence(context.Context) ([]store.PresenceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]store.PresenceRow, 0, len(m.presence))
	for _, row := range m.presence {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows, nil
}

func (m *memUserStore) MarkAllOffline(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allOffline++
	for id, row := range m.presence {
		row.IsOnline = false
		m.presence[id] = row
	}
	return nil
}

func (m *memUserStore) presenceLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.presenceCalls...)
}

func (m *memUserStore) touchCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches[id]
}

// newTestCoordinator wires a coordinator over in-memory stores.
func newTestCoordinator() (*Coordinator, *memMessageStore, *memUserStore) {
	messages := newMemMessageStore()
	users := newMemUserStore()
	return NewCoordinator(messages, users), messages, users
}

// newTestClient builds a connected client without a real socket. The send
// channel is all the tests need to observe.
func newTestClient(co *Coordinator, userID string) *Client {
	c := &Client{
		id:     uuid.NewString(),
		coord:  co,
		send:   make(chan []byte, 64),
		logger: zerolog.Nop(),
	}
	co.Connect(c)
	if userID != "" {
		co.BindUser(context.Background(), c, userID)
	}
	return c
}

// queuedEvents drains and decodes everything currently queued for the client.
func queuedEvents(t *testing.T, c *Client) []Envelope {
	t.Helper()

	var out []Envelope
	for {
		select {
		case frame := <-c.send:
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

// eventsOfType drains the client's queue and keeps only events of type t.
func eventsOfType(t *testing.T, c *Client, want EventType) []Envelope {
	t.Helper()

	var out []Envelope
	for _, env := range queuedEvents(t, c) {
		if env.Type == want {
			out = append(out, env)
		}
	}
	return out
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()

	var p T
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

// drainAll throws away every queued frame on the given clients, typically the
// presence broadcasts emitted during setup.
func drainAll(t *testing.T, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		queuedEvents(t, c)
	}
}

func TestSendMessageFansOutToAllConnections(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice1 := newTestClient(co, "alice")
	alice2 := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice1, alice2, bob)

	co.SendMessage(ctx, alice1, SendMessagePayload{
		SenderID:      "alice",
		ReceiverID:    "bob",
		Text:          "hello",
		CorrelationID: "tmp-1",
	})

	received := map[*Client]ReceiveMessagePayload{}
	for _, c := range []*Client{alice2, bob} {
		events := queuedEvents(t, c)
		require.Len(t, events, 1)
		require.Equal(t, EvtReceiveMessage, events[0].Type)
		received[c] = decodePayload[ReceiveMessagePayload](t, events[0])
	}

	// The originating connection gets the delivery plus the ack.
	senderEvents := queuedEvents(t, alice1)
	require.Len(t, senderEvents, 2)
	require.Equal(t, EvtReceiveMessage, senderEvents[0].Type)
	require.Equal(t, EvtMessageSent, senderEvents[1].Type)

	ack := decodePayload[MessageSentPayload](t, senderEvents[1])
	require.Equal(t, "tmp-1", ack.CorrelationID)
	require.NotEmpty(t, ack.ID)

	// Every connection saw the same server-assigned id.
	for _, p := range received {
		require.Equal(t, ack.ID, p.ID)
		require.Equal(t, "hello", p.Text)
	}

	rec := messages.get(t, ack.ID)
	require.Equal(t, "alice", rec.SenderID)
	require.Equal(t, "bob", rec.ReceiverID)
}

func TestSendMessageStoreFailureOnlySenderHears(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice, bob)

	messages.failCreate = true
	co.SendMessage(ctx, alice, SendMessagePayload{
		SenderID:      "alice",
		ReceiverID:    "bob",
		Text:          "hello",
		CorrelationID: "tmp-9",
	})

	events := queuedEvents(t, alice)
	require.Len(t, events, 1)
	require.Equal(t, EvtSendError, events[0].Type)

	p := decodePayload[SendErrorPayload](t, events[0])
	require.Equal(t, "tmp-9", p.CorrelationID)
	require.Equal(t, ErrTypeStoreWrite, p.ErrorType)

	require.Empty(t, queuedEvents(t, bob))
}

func TestSendMessageRejectsOversizedBody(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	drainAll(t, alice)

	body := make([]byte, MaxBodyBytes+1)
	for i := range body {
		body[i] = 'a'
	}

	co.SendMessage(ctx, alice, SendMessagePayload{
		SenderID:   "alice",
		ReceiverID: "bob",
		Text:       string(body),
	})

	events := queuedEvents(t, alice)
	require.Len(t, events, 1)
	require.Equal(t, EvtSendError, events[0].Type)
	require.Equal(t, ErrTypeValidation, decodePayload[SendErrorPayload](t, events[0]).ErrorType)
	require.Empty(t, messages.order)
}

func TestDeleteForEveryoneBroadcastsToBothParties(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob1 := newTestClient(co, "bob")
	bob2 := newTestClient(co, "bob")
	drainAll(t, alice, bob1, bob2)

	rec, err := messages.Create(ctx, "alice", "bob", "regret this")
	require.NoError(t, err)

	co.DeleteMessage(ctx, alice, DeleteMessagePayload{
		MessageID:  rec.ID,
		SenderID:   "alice",
		ReceiverID: "bob",
		DeleteType: DeleteForEveryone,
	})

	for _, c := range []*Client{alice, bob1, bob2} {
		events := queuedEvents(t, c)
		require.Len(t, events, 1)
		require.Equal(t, EvtMessageDeletedForEveryone, events[0].Type)
		require.Equal(t, rec.ID, decodePayload[DeletedForEveryonePayload](t, events[0]).MessageID)
	}

	stored := messages.get(t, rec.ID)
	require.True(t, stored.DeletedForEveryone)
	require.ElementsMatch(t, []string{"alice", "bob"}, stored.DeletedFor)
}

func TestDeleteForEveryoneRejectsNonSender(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice, bob)

	rec, err := messages.Create(ctx, "alice", "bob", "mine")
	require.NoError(t, err)

	co.DeleteMessage(ctx, bob, DeleteMessagePayload{
		MessageID:  rec.ID,
		SenderID:   "bob",
		ReceiverID: "alice",
		DeleteType: DeleteForEveryone,
	})

	events := queuedEvents(t, bob)
	require.Len(t, events, 1)
	require.Equal(t, EvtDeleteError, events[0].Type)
	require.Equal(t, ErrTypeAuthorization, decodePayload[DeleteErrorPayload](t, events[0]).ErrorType)

	require.Empty(t, queuedEvents(t, alice))
	require.False(t, messages.get(t, rec.ID).DeletedForEveryone)
}

func TestDeleteForMeHidesOnlyForRequester(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob1 := newTestClient(co, "bob")
	bob2 := newTestClient(co, "bob")
	drainAll(t, alice, bob1, bob2)

	rec, err := messages.Create(ctx, "alice", "bob", "keep on my side")
	require.NoError(t, err)

	co.DeleteMessage(ctx, bob1, DeleteMessagePayload{
		MessageID:  rec.ID,
		SenderID:   "bob",
		ReceiverID: "alice",
		DeleteType: DeleteForMe,
	})

	// Both of bob's connections update; alice never hears about it.
	for _, c := range []*Client{bob1, bob2} {
		events := queuedEvents(t, c)
		require.Len(t, events, 1)
		require.Equal(t, EvtMessageDeletedForMe, events[0].Type)
	}
	require.Empty(t, queuedEvents(t, alice))

	stored := messages.get(t, rec.ID)
	require.False(t, stored.DeletedForEveryone)
	require.Equal(t, []string{"bob"}, stored.DeletedFor)

	// Repeating the request is harmless.
	co.DeleteMessage(ctx, bob1, DeleteMessagePayload{
		MessageID: rec.ID, SenderID: "bob", ReceiverID: "alice", DeleteType: DeleteForMe,
	})
	require.Equal(t, []string{"bob"}, messages.get(t, rec.ID).DeletedFor)
}

func TestDeleteUnpersistedIDRejectedDistinctly(t *testing.T) {
	co, _, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	drainAll(t, alice)

	co.DeleteMessage(ctx, alice, DeleteMessagePayload{
		MessageID:  "tmp-optimistic-42",
		SenderID:   "alice",
		ReceiverID: "bob",
		DeleteType: DeleteForEveryone,
	})

	events := queuedEvents(t, alice)
	require.Len(t, events, 1)
	require.Equal(t, EvtDeleteError, events[0].Type)
	require.Equal(t, ErrTypeNotYetPersisted, decodePayload[DeleteErrorPayload](t, events[0]).ErrorType)
}

func TestDeleteMissingMessageIsIdempotentSuccess(t *testing.T) {
	co, _, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice, bob)

	gone := uuid.NewString()
	co.DeleteMessage(ctx, alice, DeleteMessagePayload{
		MessageID:  gone,
		SenderID:   "alice",
		ReceiverID: "bob",
		DeleteType: DeleteForEveryone,
	})

	events := queuedEvents(t, alice)
	require.Len(t, events, 1)
	require.Equal(t, EvtMessageDeletedForEveryone, events[0].Type)

	// Other parties saw the broadcast from whichever deletion won; no repeat.
	require.Empty(t, queuedEvents(t, bob))
}

func TestDeleteUnknownTypeRejected(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	drainAll(t, alice)

	rec, err := messages.Create(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	co.DeleteMessage(ctx, alice, DeleteMessagePayload{
		MessageID: rec.ID, SenderID: "alice", ReceiverID: "bob", DeleteType: "purge",
	})

	events := queuedEvents(t, alice)
	require.Len(t, events, 1)
	require.Equal(t, EvtDeleteError, events[0].Type)
	require.Equal(t, ErrTypeValidation, decodePayload[DeleteErrorPayload](t, events[0]).ErrorType)
}

func TestAddReactionLastWriteWins(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice, bob)

	rec, err := messages.Create(ctx, "alice", "bob", "react to me")
	require.NoError(t, err)

	co.AddReaction(ctx, bob, ReactionPayload{MessageID: rec.ID, ReactorID: "bob", Symbol: "👍"})
	co.AddReaction(ctx, bob, ReactionPayload{MessageID: rec.ID, ReactorID: "bob", Symbol: "❤️"})

	for _, c := range []*Client{alice, bob} {
		events := eventsOfType(t, c, EvtReactionAdded)
		require.Len(t, events, 2)

		last := decodePayload[ReactionUpdatePayload](t, events[1])
		require.Equal(t, rec.ID, last.MessageID)
		require.Equal(t, map[string]string{"bob": "❤️"}, last.Reactions)
	}

	require.Equal(t, map[string]string{"bob": "❤️"}, messages.get(t, rec.ID).Reactions)
}

func TestAddReactionOffListSymbolDropped(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice, bob)

	rec, err := messages.Create(ctx, "alice", "bob", "strict list")
	require.NoError(t, err)

	co.AddReaction(ctx, bob, ReactionPayload{MessageID: rec.ID, ReactorID: "bob", Symbol: "🔥"})

	require.Empty(t, queuedEvents(t, alice))
	require.Empty(t, queuedEvents(t, bob))
	require.Empty(t, messages.get(t, rec.ID).Reactions)
}

func TestRemoveReactionIdempotent(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice, bob)

	rec, err := messages.Create(ctx, "alice", "bob", "nothing to remove")
	require.NoError(t, err)

	co.RemoveReaction(ctx, bob, ReactionPayload{MessageID: rec.ID, ReactorID: "bob"})

	// Removal of an absent reaction still confirms the (empty) mapping.
	events := eventsOfType(t, bob, EvtReactionRemoved)
	require.Len(t, events, 1)
	require.Empty(t, decodePayload[ReactionUpdatePayload](t, events[0]).Reactions)
}

func TestPresenceTransitionsAcrossConnections(t *testing.T) {
	co, _, users := newTestCoordinator()
	ctx := context.Background()

	observer := newTestClient(co, "carol")
	drainAll(t, observer)
	require.Equal(t, []string{"carol:online"}, users.presenceLog())

	alice1 := newTestClient(co, "alice")

	// First connection: one store write, observers hear it.
	require.Equal(t, []string{"carol:online", "alice:online"}, users.presenceLog())
	events := eventsOfType(t, observer, EvtUserStatusChanged)
	require.Len(t, events, 1)
	p := decodePayload[StatusChangedPayload](t, events[0])
	require.Equal(t, "alice", p.UserID)
	require.Equal(t, "online", p.Status)

	// Second connection of the same user: no transition.
	alice2 := newTestClient(co, "alice")
	require.Equal(t, []string{"carol:online", "alice:online"}, users.presenceLog())
	require.Empty(t, eventsOfType(t, observer, EvtUserStatusChanged))
	drainAll(t, alice1, alice2)

	// Dropping one of two connections: still online.
	co.Disconnect(ctx, alice2)
	require.True(t, co.Registry().IsOnline("alice"))
	require.Empty(t, eventsOfType(t, observer, EvtUserStatusChanged))

	// Dropping the last one: offline transition.
	co.Disconnect(ctx, alice1)
	require.False(t, co.Registry().IsOnline("alice"))
	require.Equal(t, []string{"carol:online", "alice:online", "alice:offline"}, users.presenceLog())

	events = eventsOfType(t, observer, EvtUserStatusChanged)
	require.Len(t, events, 1)
	p = decodePayload[StatusChangedPayload](t, events[0])
	require.Equal(t, "alice", p.UserID)
	require.Equal(t, "offline", p.Status)
}

func TestRecordActivityThrottledPerUser(t *testing.T) {
	co, _, users := newTestCoordinator()
	ctx := context.Background()

	co.RecordActivity(ctx, "alice")
	co.RecordActivity(ctx, "alice")
	co.RecordActivity(ctx, "alice")
	co.RecordActivity(ctx, "bob")

	require.Equal(t, 1, users.touchCount("alice"))
	require.Equal(t, 1, users.touchCount("bob"))
}

func TestOnlineStatusesDerivedFromLiveConnections(t *testing.T) {
	co, _, users := newTestCoordinator()
	ctx := context.Background()

	// Stale store state: bob flagged online but holds no connection.
	require.NoError(t, users.SetPresence(ctx, "bob", true, time.Now()))

	alice := newTestClient(co, "alice")
	drainAll(t, alice)

	statuses, err := co.OnlineStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byID := map[string]UserStatus{}
	for _, s := range statuses {
		byID[s.UserID] = s
	}
	require.True(t, byID["alice"].Online)
	require.False(t, byID["bob"].Online)
}

func TestLoadHistoryAppliesViewerFilter(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	bob := newTestClient(co, "bob")
	drainAll(t, alice, bob)

	kept, err := messages.Create(ctx, "alice", "bob", "visible to both")
	require.NoError(t, err)
	hiddenForAlice, err := messages.Create(ctx, "bob", "alice", "alice cleared this")
	require.NoError(t, err)
	gone, err := messages.Create(ctx, "alice", "bob", "deleted everywhere")
	require.NoError(t, err)

	require.NoError(t, messages.AppendDeletedFor(ctx, hiddenForAlice.ID, "alice"))
	require.NoError(t, messages.MarkDeletedForEveryone(ctx, gone.ID, []string{"alice", "bob"}))

	co.LoadHistory(ctx, alice, GetMessagesPayload{SenderID: "alice", ReceiverID: "bob"})
	events := eventsOfType(t, alice, EvtMessagesLoaded)
	require.Len(t, events, 1)

	loaded := decodePayload[MessagesLoadedPayload](t, events[0])
	require.Empty(t, loaded.Error)
	require.Len(t, loaded.Messages, 1)
	require.Equal(t, kept.ID, loaded.Messages[0].ID)

	// The other party still sees the per-viewer deleted message.
	co.LoadHistory(ctx, bob, GetMessagesPayload{SenderID: "bob", ReceiverID: "alice"})
	events = eventsOfType(t, bob, EvtMessagesLoaded)
	require.Len(t, events, 1)

	loaded = decodePayload[MessagesLoadedPayload](t, events[0])
	require.Len(t, loaded.Messages, 2)
	require.Equal(t, kept.ID, loaded.Messages[0].ID)
	require.Equal(t, hiddenForAlice.ID, loaded.Messages[1].ID)
}

func TestLoadHistoryStoreFailure(t *testing.T) {
	co, messages, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	drainAll(t, alice)

	messages.failHist = true
	co.LoadHistory(ctx, alice, GetMessagesPayload{SenderID: "alice", ReceiverID: "bob"})

	events := eventsOfType(t, alice, EvtMessagesLoaded)
	require.Len(t, events, 1)

	loaded := decodePayload[MessagesLoadedPayload](t, events[0])
	require.Empty(t, loaded.Messages)
	require.Equal(t, ErrTypeStoreRead, loaded.ErrorType)
}

func TestResetMarksAllOffline(t *testing.T) {
	co, _, users := newTestCoordinator()
	ctx := context.Background()

	require.NoError(t, users.SetPresence(ctx, "alice", true, time.Now()))
	require.NoError(t, co.Reset(ctx))

	rows, err := users.ListPresence(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].IsOnline)
}

func TestSendMessageSurvivesConcurrentDisconnect(t *testing.T) {
	co, _, _ := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")

	// Receiver connections churn while deliveries are in flight, so fan-outs
	// keep hitting snapshots that include already-removed clients. Queueing to
	// a disconnected client must drop the frame, never panic.
	const iterations = 2000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			bob := newTestClient(co, "bob")
			co.Disconnect(ctx, bob)
		}
	}()

	for i := 0; i < iterations; i++ {
		co.SendMessage(ctx, alice, SendMessagePayload{
			SenderID:      "alice",
			ReceiverID:    "bob",
			Text:          "hello",
			CorrelationID: "tmp-race",
		})
		// Keep the sender queue from saturating so deliveries stay flowing.
		if i%16 == 0 {
			queuedEvents(t, alice)
		}
	}
	<-done
}

func TestSendEventAfterDisconnectIsDropped(t *testing.T) {
	co, _, _ := newTestCoordinator()
	ctx := context.Background()

	bob := newTestClient(co, "bob")
	co.Disconnect(ctx, bob)

	// The queue is closed at this point; a late send must be a no-op.
	bob.sendEvent(EvtReceiveMessage, ReceiveMessagePayload{})
	bob.closeSend()

	// Drain whatever was buffered before the disconnect: the late frame must
	// not be among it, and the channel must report closed.
	for {
		frame, open := <-bob.send
		if !open {
			break
		}
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		require.NotEqual(t, EvtReceiveMessage, env.Type)
	}
}

func TestRecordHeartbeatSeparateBudgetAndSilent(t *testing.T) {
	co, _, users := newTestCoordinator()
	ctx := context.Background()

	alice := newTestClient(co, "alice")
	observer := newTestClient(co, "bob")
	drainAll(t, alice, observer)

	// Activity and heartbeat writes draw from independent budgets: spending
	// one does not block the other.
	co.RecordActivity(ctx, "alice")
	co.RecordHeartbeat(ctx, "alice")
	require.Equal(t, 2, users.touchCount("alice"))

	// A second heartbeat inside the window is absorbed by its own throttle.
	co.RecordHeartbeat(ctx, "alice")
	require.Equal(t, 2, users.touchCount("alice"))

	// Heartbeats refresh activity only; they never announce a status change.
	require.Empty(t, eventsOfType(t, observer, EvtUserStatusChanged))
	require.Empty(t, eventsOfType(t, alice, EvtUserStatusChanged))
}
