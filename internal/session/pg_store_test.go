package session

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"divledger/api/internal/store"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openSessionTestDB(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("DIVLEDGER_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DIVLEDGER_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := store.ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return ctx, db
}

func seedSessionUser(t *testing.T, ctx context.Context, db *sql.DB) int64 {
	t.Helper()
	var id int64
	err := db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, is_active)
		VALUES ('mlopez', 'mlopez@example.edu', 'x', 'Maria', 'Lopez', TRUE)
		RETURNING id`).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func TestPGStoreSessionLifecycle(t *testing.T) {
	ctx, db := openSessionTestDB(t)
	s := NewPGStore(db)

	userID := seedSessionUser(t, ctx, db)
	data := TokenData{UserID: userID, Username: "mlopez", FirstName: "Maria", CreatedAt: time.Now().UTC()}
	hash := HashToken("live-token")
	if err := s.SaveSession(ctx, hash, data, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save session: %v", err)
	}

	got, err := s.LookupSession(ctx, hash)
	if err != nil {
		t.Fatalf("lookup session: %v", err)
	}
	if got.UserID != userID || got.Username != "mlopez" || got.FirstName != "Maria" {
		t.Errorf("token data = %+v", got)
	}

	if err := s.RevokeSession(ctx, hash); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if _, err := s.LookupSession(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup after revoke = %v, want ErrNotFound", err)
	}
}

func TestPGStorePurgeExpired(t *testing.T) {
	ctx, db := openSessionTestDB(t)
	s := NewPGStore(db)

	userID := seedSessionUser(t, ctx, db)
	data := TokenData{UserID: userID, Username: "mlopez", FirstName: "Maria", CreatedAt: time.Now().UTC()}
	staleHash := HashToken("stale-token")
	liveHash := HashToken("live-token")
	if err := s.SaveSession(ctx, staleHash, data, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("save stale session: %v", err)
	}
	if err := s.SaveSession(ctx, liveHash, data, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save live session: %v", err)
	}

	// Expired rows are already invisible to lookups before any purge runs.
	if _, err := s.LookupSession(ctx, staleHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup expired = %v, want ErrNotFound", err)
	}

	if err := s.PurgeExpired(ctx); err != nil {
		t.Fatalf("purge expired: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 1 {
		t.Errorf("sessions remaining = %d, want 1", count)
	}
	if _, err := s.LookupSession(ctx, liveHash); err != nil {
		t.Errorf("live session lost after purge: %v", err)
	}
}
