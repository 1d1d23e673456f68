package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserThrottleDropsCallsInsideWindow(t *testing.T) {
	th := newUserThrottle(time.Minute)

	require.True(t, th.Allow("alice"))
	require.False(t, th.Allow("alice"))
	require.False(t, th.Allow("alice"))
}

func TestUserThrottleIsPerUser(t *testing.T) {
	th := newUserThrottle(time.Minute)

	require.True(t, th.Allow("alice"))
	require.True(t, th.Allow("bob"))
	require.False(t, th.Allow("alice"))
}

func TestUserThrottleRefills(t *testing.T) {
	th := newUserThrottle(10 * time.Millisecond)

	require.True(t, th.Allow("alice"))
	require.False(t, th.Allow("alice"))

	time.Sleep(30 * time.Millisecond)
	require.True(t, th.Allow("alice"))
}
