package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id::text, username, nickname, avatar_key, password_hash, is_online, last_activity, created_at`

// PgUserStore implements UserStore on top of a pgx connection pool.
type PgUserStore struct {
	pool *pgxpool.Pool
}

// NewPgUserStore constructs a PgUserStore.
func NewPgUserStore(pool *pgxpool.Pool) *PgUserStore {
	return &PgUserStore{pool: pool}
}

func scanUser(row pgx.Row) (*UserRecord, error) {
	var rec UserRecord
	err := row.Scan(
		&rec.ID,
		&rec.Username,
		&rec.Nickname,
		&rec.AvatarKey,
		&rec.PasswordHash,
		&rec.IsOnline,
		&rec.LastActivity,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &rec, nil
}

// Create inserts a new account. A unique violation on the username bubbles up
// unwrapped so callers can classify it via db.IsUniqueViolation.
func (s *PgUserStore) Create(ctx context.Context, username, passwordHash, nickname string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, nickname)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		username, passwordHash, nickname,
	)
	return scanUser(row)
}

// FindByID returns the account or ErrNotFound.
func (s *PgUserStore) FindByID(ctx context.Context, id string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1::uuid`,
		id,
	)
	return scanUser(row)
}

// FindByUsername returns the account or ErrNotFound.
func (s *PgUserStore) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username = $1`,
		username,
	)
	return scanUser(row)
}

// SetPresence writes the online flag and last-activity timestamp.
func (s *PgUserStore) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET is_online = $2, last_activity = $3
		WHERE id = $1::uuid`,
		id, online, at,
	)
	if err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchActivity refreshes last_activity and keeps the user marked online.
func (s *PgUserStore) TouchActivity(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET is_online = TRUE, last_activity = $2
		WHERE id = $1::uuid`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile updates the display fields and returns the fresh record.
func (s *PgUserStore) UpdateProfile(ctx context.Context, id, nickname, avatarKey string) (*UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET nickname = $2, avatar_key = $3
		WHERE id = $1::uuid
		RETURNING `+userColumns,
		id, nickname, avatarKey,
	)
	return scanUser(row)
}

// UpdatePassword replaces the stored password hash.
func (s *PgUserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $2
		WHERE id = $1::uuid`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPresence returns the presence fields of every known user.
func (s *PgUserStore) ListPresence(ctx context.Context) ([]PresenceRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, is_online, last_activity
		FROM users
		ORDER BY username ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query presence: %w", err)
	}
	defer rows.Close()

	var out []PresenceRow
	for rows.Next() {
		var row PresenceRow
		if err := rows.Scan(&row.UserID, &row.IsOnline, &row.LastActivity); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presence: %w", err)
	}
	return out, nil
}

// MarkAllOffline forces every user offline.
func (s *PgUserStore) MarkAllOffline(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET is_online = FALSE WHERE is_online`)
	if err != nil {
		return fmt.Errorf("mark all offline: %w", err)
	}
	return nil
}
