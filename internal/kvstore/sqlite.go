package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

// SQLite is a file-backed Store so sessions survive a server restart.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSQLite(dbPath string) (*SQLite, error) {
	return NewSQLiteWithClock(dbPath, clockwork.NewRealClock())
}

func NewSQLiteWithClock(dbPath string, clock clockwork.Clock) (*SQLite, error) {
	// WAL mode and a busy timeout to keep concurrent request handlers from
	// tripping over the single writer.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer; cap the pool accordingly.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at INTEGER
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv_entries table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv_set_members (
		key TEXT NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (key, member)
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv_set_members table: %w", err)
	}

	return &SQLite{db: db, clock: clock}, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %q: %w", key, err)
	}

	if expiresAt.Valid && s.clock.Now().UnixMilli() >= expiresAt.Int64 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
			logger.Warn("Failed to delete expired key", zap.String("key", key), zap.Error(err))
		}
		return "", false, nil
	}

	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv_entries (key, value, expires_at) VALUES (?, ?, NULL)`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	expiresAt := s.clock.Now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM kv_entries WHERE key = ?`, key).
		Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read ttl for key %q: %w", key, err)
	}
	if !expiresAt.Valid {
		return 0, false, nil
	}

	remaining := time.Duration(expiresAt.Int64-s.clock.Now().UnixMilli()) * time.Millisecond
	if remaining <= 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
			logger.Warn("Failed to delete expired key", zap.String("key", key), zap.Error(err))
		}
		return 0, false, nil
	}
	return remaining, true, nil
}

func (s *SQLite) Del(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) SAdd(ctx context.Context, key, member string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_set_members (key, member) VALUES (?, ?)`, key, member)
	if err != nil {
		return fmt.Errorf("failed to add set member: %w", err)
	}
	return nil
}

func (s *SQLite) SRem(ctx context.Context, key, member string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_set_members WHERE key = ? AND member = ?`, key, member)
	if err != nil {
		return fmt.Errorf("failed to remove set member: %w", err)
	}
	return nil
}

func (s *SQLite) SMembers(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member FROM kv_set_members WHERE key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read set members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("failed to scan set member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}
