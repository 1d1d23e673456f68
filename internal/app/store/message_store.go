package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"echochat/internal/pkg/randx"
)

const messageColumns = `id::text, sender_id::text, receiver_id::text, body, reactions, deleted_for_everyone, deleted_for, created_at`

// PgMessageStore implements MessageStore on top of a pgx connection pool.
type PgMessageStore struct {
	pool *pgxpool.Pool
}

// NewPgMessageStore constructs a PgMessageStore.
func NewPgMessageStore(pool *pgxpool.Pool) *PgMessageStore {
	return &PgMessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*MessageRecord, error) {
	var rec MessageRecord
	err := row.Scan(
		&rec.ID,
		&rec.SenderID,
		&rec.ReceiverID,
		&rec.Body,
		&rec.Reactions,
		&rec.DeletedForEveryone,
		&rec.DeletedFor,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &rec, nil
}

// Create persists a new message with a server-assigned identifier and timestamp.
func (s *PgMessageStore) Create(ctx context.Context, senderID, receiverID, body string) (*MessageRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, body)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4)
		RETURNING `+messageColumns,
		randx.MessageID(), senderID, receiverID, body,
	)

	rec, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return rec, nil
}

// FindByID returns the message or ErrNotFound.
func (s *PgMessageStore) FindByID(ctx context.Context, id string) (*MessageRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1::uuid`,
		id,
	)
	return scanMessage(row)
}

// AppendDeletedFor adds viewerID to the deleted_for set of the message.
// The guard keeps the array duplicate-free, making repeated calls no-ops.
func (s *PgMessageStore) AppendDeletedFor(ctx context.Context, id, viewerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET deleted_for = CASE
			WHEN $2 = ANY (deleted_for) THEN deleted_for
			ELSE array_append(deleted_for, $2)
		END
		WHERE id = $1::uuid`,
		id, viewerID,
	)
	if err != nil {
		return fmt.Errorf("append deleted_for: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeletedForEveryone sets the deleted_for_everyone flag and appends the
// given viewers to deleted_for, deduplicated.
func (s *PgMessageStore) MarkDeletedForEveryone(ctx context.Context, id string, viewers []string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET deleted_for_everyone = TRUE,
		    deleted_for = ARRAY(SELECT DISTINCT unnest(deleted_for || $2::text[]))
		WHERE id = $1::uuid`,
		id, viewers,
	)
	if err != nil {
		return fmt.Errorf("mark deleted for everyone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReaction records the reactor's reaction symbol, overwriting a prior one.
func (s *PgMessageStore) SetReaction(ctx context.Context, id, reactorID, symbol string) (*MessageRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET reactions = jsonb_set(reactions, ARRAY[$2], to_jsonb($3::text), true)
		WHERE id = $1::uuid
		RETURNING `+messageColumns,
		id, reactorID, symbol,
	)
	return scanMessage(row)
}

// ClearReaction removes the reactor's reaction if present.
func (s *PgMessageStore) ClearReaction(ctx context.Context, id, reactorID string) (*MessageRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE messages
		SET reactions = reactions - $2
		WHERE id = $1::uuid
		RETURNING `+messageColumns,
		id, reactorID,
	)
	return scanMessage(row)
}

// History returns the visible conversation slice for the given viewer.
// The deletion filter here is the single source of truth: both the real-time
// channel and the REST history endpoint go through this query.
func (s *PgMessageStore) History(ctx context.Context, viewerID, userA, userB string, limit int) ([]MessageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM (
			SELECT *
			FROM messages
			WHERE ((sender_id = $1::uuid AND receiver_id = $2::uuid)
			    OR (sender_id = $2::uuid AND receiver_id = $1::uuid))
			  AND NOT deleted_for_everyone
			  AND NOT ($3 = ANY (deleted_for))
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		) recent
		ORDER BY created_at ASC, id ASC`,
		userA, userB, viewerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		rec, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}
