// Package sqlite provides a SQLite-backed lobby activity store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/lobby/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/lobby/internal/services/lobby/storage"
	"github.com/louisbranch/lobby/internal/services/lobby/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// maxListLimit caps a single ListActivity read.
const maxListLimit = 500

// Store persists room activity in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite activity store and applies embedded migrations.
// The path ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if dsn == ":memory:" {
		// Each connection to :memory: is its own database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendActivity inserts one activity entry.
func (s *Store) AppendActivity(ctx context.Context, entry storage.ActivityEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	room := strings.TrimSpace(entry.Room)
	username := strings.TrimSpace(entry.Username)
	logKey := strings.TrimSpace(entry.LogKey)
	if room == "" {
		return fmt.Errorf("room is required")
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if logKey == "" {
		return fmt.Errorf("log key is required")
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO room_activity (room, username, log_key, occurred_at)
		 VALUES (?, ?, ?, ?)`,
		room,
		username,
		logKey,
		toMillis(occurredAt),
	)
	if err != nil {
		return fmt.Errorf("append room activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest entries for a room, newest first.
func (s *Store) ListActivity(ctx context.Context, room string, limit int) ([]storage.ActivityEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, fmt.Errorf("room is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT room, username, log_key, occurred_at
		   FROM room_activity
		  WHERE room = ?
		  ORDER BY occurred_at DESC, id DESC
		  LIMIT ?`,
		room,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list room activity: %w", err)
	}
	defer rows.Close()

	entries := make([]storage.ActivityEntry, 0, limit)
	for rows.Next() {
		var entry storage.ActivityEntry
		var occurredAt int64
		if err := rows.Scan(&entry.Room, &entry.Username, &entry.LogKey, &occurredAt); err != nil {
			return nil, fmt.Errorf("list room activity: %w", err)
		}
		entry.OccurredAt = fromMillis(occurredAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list room activity: %w", err)
	}
	return entries, nil
}

var _ storage.ActivityStore = (*Store)(nil)
