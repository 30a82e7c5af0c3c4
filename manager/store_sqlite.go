package manager

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS servers (
	name TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStore persists server records in SQLite. Suited to setups where the
// registry outgrows a flat file but stays on one machine.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite-backed registry.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("manager: sqlite store dsn is required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("manager: sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manager: sqlite store set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manager: sqlite store create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// List returns all records in deterministic (name-sorted) order.
func (s *SQLiteStore) List(ctx context.Context) ([]ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("manager: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM servers
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("manager: sqlite list servers: %w", err)
	}
	defer rows.Close()

	var recs []ServerRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("manager: sqlite scan server: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manager: sqlite server rows: %w", err)
	}

	return cloneRecords(recs), nil
}

// Get returns a record by name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (ServerRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ServerRecord{}, false, err
	}
	if s == nil || s.db == nil {
		return ServerRecord{}, false, errors.New("manager: sqlite store is nil")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT payload
FROM servers
WHERE name = ?`, name)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ServerRecord{}, false, nil
		}
		return ServerRecord{}, false, fmt.Errorf("manager: sqlite get server: %w", err)
	}

	rec, err := decodeRecord(payload)
	if err != nil {
		return ServerRecord{}, false, err
	}
	return rec.Clone(), true, nil
}

// Upsert inserts or updates a record by name.
func (s *SQLiteStore) Upsert(ctx context.Context, rec ServerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("manager: sqlite store is nil")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return errors.New("manager: server name is required")
	}

	existing, found, err := s.Get(ctx, rec.Name)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rec.Status == "" {
		rec.Status = StatusInstalled
	}
	if rec.CreatedAt.IsZero() {
		if found && !existing.CreatedAt.IsZero() {
			rec.CreatedAt = existing.CreatedAt
		} else {
			rec.CreatedAt = now
		}
	}
	rec.UpdatedAt = now

	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO servers (name, payload, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
	payload = excluded.payload,
	updated_at = excluded.updated_at`,
		rec.Name,
		payload,
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("manager: sqlite upsert server: %w", err)
	}
	return nil
}

// Delete removes a record by name. Deleting a missing name is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("manager: sqlite store is nil")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE name = ?`, name); err != nil {
		return fmt.Errorf("manager: sqlite delete server: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func encodeRecord(rec ServerRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("manager: encode server record: %w", err)
	}
	return data, nil
}

func decodeRecord(payload []byte) (ServerRecord, error) {
	var rec ServerRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return ServerRecord{}, fmt.Errorf("manager: decode server record: %w", err)
	}
	return rec, nil
}

var _ Store = (*SQLiteStore)(nil)
