/*
Package store defines the persistence contracts consumed by the real-time coordinator
and the HTTP handlers, together with their PostgreSQL implementations.

The coordinator treats both stores as external collaborators: presence writes are
best-effort, and all mutations to a message's deletion/reaction fields are expressed
as targeted field updates rather than whole-row overwrites.
*/
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the referenced record does not exist.
var ErrNotFound = errors.New("store: record not found")

// UserRecord is the persisted representation of an account.
type UserRecord struct {
	ID           string
	Username     string
	Nickname     string
	AvatarKey    string
	PasswordHash string
	IsOnline     bool
	LastActivity time.Time
	CreatedAt    time.Time
}

// PresenceRow is the per-user slice of presence fields used by status queries.
type PresenceRow struct {
	UserID       string
	IsOnline     bool
	LastActivity time.Time
}

// MessageRecord is the persisted representation of a direct message.
//
// Reactions maps reactor id to a single reaction symbol (last write wins).
// DeletedFor is append-only: once a viewer id lands in it, no operation removes it.
// Once DeletedForEveryone is set the message must never be served to any party.
type MessageRecord struct {
	ID                 string
	SenderID           string
	ReceiverID         string
	Body               string
	Reactions          map[string]string
	DeletedForEveryone bool
	DeletedFor         []string
	CreatedAt          time.Time
}

// MessageStore persists and queries direct messages.
type MessageStore interface {
	// Create persists a new message and returns it with the server-assigned
	// identifier and timestamp.
	Create(ctx context.Context, senderID, receiverID, body string) (*MessageRecord, error)

	// FindByID returns the message or ErrNotFound.
	FindByID(ctx context.Context, id string) (*MessageRecord, error)

	// AppendDeletedFor adds viewerID to the message's deleted_for set.
	// Appending an already-present viewer is a no-op.
	AppendDeletedFor(ctx context.Context, id, viewerID string) error

	// MarkDeletedForEveryone sets the deleted_for_everyone flag and, for
	// bookkeeping, appends the given viewers to deleted_for.
	MarkDeletedForEveryone(ctx context.Context, id string, viewers []string) error

	// SetReaction records reactorID's reaction, overwriting any prior one,
	// and returns the updated record. Returns ErrNotFound for missing messages.
	SetReaction(ctx context.Context, id, reactorID, symbol string) (*MessageRecord, error)

	// ClearReaction removes reactorID's reaction if present (idempotent) and
	// returns the updated record. Returns ErrNotFound for missing messages.
	ClearReaction(ctx context.Context, id, reactorID string) (*MessageRecord, error)

	// History returns up to limit most recent messages between userA and userB,
	// ordered by creation time ascending, excluding messages deleted for
	// everyone and messages hidden from viewerID.
	History(ctx context.Context, viewerID, userA, userB string, limit int) ([]MessageRecord, error)
}

// UserStore persists and queries accounts and their presence fields.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash, nickname string) (*UserRecord, error)
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)

	// SetPresence writes the online flag together with the last-activity timestamp.
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error

	// TouchActivity refreshes last_activity and keeps the user marked online.
	TouchActivity(ctx context.Context, id string, at time.Time) error

	UpdateProfile(ctx context.Context, id, nickname, avatarKey string) (*UserRecord, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// ListPresence returns the presence fields of every known user.
	ListPresence(ctx context.Context) ([]PresenceRow, error)

	// MarkAllOffline forces every user offline. Called once at process start,
	// since persisted online flags cannot be trusted across a restart.
	MarkAllOffline(ctx context.Context) error
}
