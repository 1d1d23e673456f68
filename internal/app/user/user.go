/*
Package user defines the client-facing representation of an account.

It shapes persisted user records into the profile structure returned by the
authentication and profile endpoints and embedded in identity tokens.
*/
package user

import (
	"time"

	"echochat/internal/app/store"
)

// Profile is the public view of an account.
type Profile struct {

	// ID is the server-assigned account identifier.
	ID string `json:"id"`

	// Username is the unique login name, never changed after registration.
	Username string `json:"username"`

	// Nickname is the display name shown next to messages.
	Nickname string `json:"nickname"`

	// Avatar is the resolved URL of the account's avatar, empty when unset.
	Avatar string `json:"avatar,omitempty"`

	// LastActivity is the last observed activity time in Unix milliseconds.
	LastActivity int64 `json:"lastActivity"`

	// CreatedAt is the registration time in Unix milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// ProfileFrom shapes a stored record into its public view. The avatar URL is
// resolved by the caller since only the storage layer knows how to serve keys.
func ProfileFrom(rec *store.UserRecord, avatarURL string) Profile {
	return Profile{
		ID:           rec.ID,
		Username:     rec.Username,
		Nickname:     rec.Nickname,
		Avatar:       avatarURL,
		LastActivity: toMillis(rec.LastActivity),
		CreatedAt:    toMillis(rec.CreatedAt),
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
