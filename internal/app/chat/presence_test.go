package chat

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"
)

func newBareClient() *Client {
	return &Client{
		id:     uuid.NewString(),
		send:   make(chan []byte, 8),
		logger: zerolog.Nop(),
	}
}

func TestRegistryBindFirstAndLast(t *testing.T) {
	r := NewRegistry()

	c1 := newBareClient()
	c2 := newBareClient()
	r.Add(c1)
	r.Add(c2)

	require.True(t, r.Bind(c1.id, "alice"), "first connection should report first")
	require.False(t, r.Bind(c2.id, "alice"), "second connection should not report first")
	require.True(t, r.IsOnline("alice"))

	userID, last := r.Remove(c1.id)
	require.Equal(t, "alice", userID)
	require.False(t, last)
	require.True(t, r.IsOnline("alice"))

	userID, last = r.Remove(c2.id)
	require.Equal(t, "alice", userID)
	require.True(t, last)
	require.False(t, r.IsOnline("alice"))
}

func TestRegistryBindIsIdempotentPerConnection(t *testing.T) {
	r := NewRegistry()

	c := newBareClient()
	r.Add(c)

	require.True(t, r.Bind(c.id, "alice"))
	require.False(t, r.Bind(c.id, "alice"), "rebinding the same connection is not a new transition")
	require.Len(t, r.ClientsForUser("alice"), 1)
}

func TestRegistryRebindMovesConnectionBetweenUsers(t *testing.T) {
	r := NewRegistry()

	c := newBareClient()
	r.Add(c)

	require.True(t, r.Bind(c.id, "alice"))
	require.True(t, r.Bind(c.id, "bob"), "bob gains his first connection")

	require.False(t, r.IsOnline("alice"))
	require.True(t, r.IsOnline("bob"))
}

func TestRegistryRemoveUnknownConnection(t *testing.T) {
	r := NewRegistry()

	userID, last := r.Remove("no-such-conn")
	require.Empty(t, userID)
	require.False(t, last)
}

func TestRegistryRecipientsDedupAcrossRoomAndUserSets(t *testing.T) {
	r := NewRegistry()

	alice := newBareClient()
	bob := newBareClient()
	carol := newBareClient()
	for _, c := range []*Client{alice, bob, carol} {
		r.Add(c)
	}
	r.Bind(alice.id, "alice")
	r.Bind(bob.id, "bob")
	r.Bind(carol.id, "carol")

	room := ConversationKey("alice", "bob")
	// alice subscribed to the room as well: must not be delivered twice.
	r.JoinRoom(alice.id, room)

	recipients := r.Recipients(room, "alice", "bob")
	require.Len(t, recipients, 2)

	ids := map[string]bool{}
	for _, c := range recipients {
		ids[c.id] = true
	}
	require.True(t, ids[alice.id])
	require.True(t, ids[bob.id])
	require.False(t, ids[carol.id])
}

func TestRegistryRemoveClearsRoomMembership(t *testing.T) {
	r := NewRegistry()

	c := newBareClient()
	r.Add(c)
	r.Bind(c.id, "alice")
	r.JoinRoom(c.id, "dm:alice:bob")

	r.Remove(c.id)

	require.Empty(t, r.Recipients("dm:alice:bob"))
}

func TestRegistryOnlineSet(t *testing.T) {
	r := NewRegistry()

	alice := newBareClient()
	anonymous := newBareClient()
	r.Add(alice)
	r.Add(anonymous)
	r.Bind(alice.id, "alice")

	online := r.OnlineSet()
	require.Len(t, online, 1)
	_, ok := online["alice"]
	require.True(t, ok)
}
