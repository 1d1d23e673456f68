package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, ConversationKey("alice", "bob"), ConversationKey("bob", "alice"))
	require.Equal(t, "dm:alice:bob", ConversationKey("bob", "alice"))
}

func TestConversationKeyDistinctPairsDistinctKeys(t *testing.T) {
	require.NotEqual(t, ConversationKey("alice", "bob"), ConversationKey("alice", "carol"))
}
