// Package store keeps resolved Chromecast records in SQLite so a restart can
// offer known devices before discovery has heard from them again.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"go2tv.app/castbeam/internal/domain"
)

const (
	dirPermissions    = 0o750
	filePermissions   = 0o600
	connectionTimeout = 5 * time.Second
	busyTimeoutMS     = 5000

	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id         TEXT PRIMARY KEY,
	instance   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	host       TEXT NOT NULL,
	port       INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
)`

var ErrUnresolved = errors.New("store: record needs a name and host")

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty database path")
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL", path, busyTimeoutMS)
	if path == MemoryPath {
		connStr = fmt.Sprintf("file::memory:?_busy_timeout=%d", busyTimeoutMS)
	} else if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps a :memory: database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if path != MemoryPath {
		_ = os.Chmod(path, filePermissions)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Upsert stores or refreshes one resolved record.
func (s *Store) Upsert(ctx context.Context, rec domain.DeviceRecord) error {
	if rec.ID == "" || !rec.Resolved() {
		return ErrUnresolved
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO devices (id, instance, name, host, port, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	instance = excluded.instance,
	name = excluded.name,
	host = excluded.host,
	port = excluded.port,
	updated_at = excluded.updated_at`,
		rec.ID, rec.Instance, rec.Name, rec.Host, rec.Port, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", rec.ID, err)
	}
	return nil
}

// List returns every cached record ordered by id.
func (s *Store) List(ctx context.Context) ([]domain.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, instance, name, host, port FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var out []domain.DeviceRecord
	for rows.Next() {
		var rec domain.DeviceRecord
		if err := rows.Scan(&rec.ID, &rec.Instance, &rec.Name, &rec.Host, &rec.Port); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	return nil
}

// Prune removes records not refreshed since before.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE updated_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning devices: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
