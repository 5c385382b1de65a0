package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGStore implements session token storage on the sessions table. It is the
// fallback backend when no Redis URL is configured.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) SaveSession(ctx context.Context, tokenHash string, data TokenData, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, username, first_name, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		tokenHash, data.UserID, data.Username, data.FirstName, data.CreatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}

func (s *PGStore) LookupSession(ctx context.Context, tokenHash string) (TokenData, error) {
	var data TokenData
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, first_name, created_at
		FROM sessions
		WHERE token_hash = $1 AND expires_at > NOW()`,
		tokenHash).Scan(&data.UserID, &data.Username, &data.FirstName, &data.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TokenData{}, ErrNotFound
	}
	if err != nil {
		return TokenData{}, fmt.Errorf("lookup session token: %w", err)
	}
	return data, nil
}

func (s *PGStore) RevokeSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("revoke session token: %w", err)
	}
	return nil
}

// PurgeExpired removes stale rows. The server runs it on an hourly loop.
func (s *PGStore) PurgeExpired(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("purge expired sessions: %w", err)
	}
	return nil
}
