package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresStoreSchema = `
CREATE TABLE IF NOT EXISTS trellis_servers (
	name TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// PostgresStore persists server records in PostgreSQL via pgxpool, for teams
// pointing several machines at one shared registry.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection, and ensures the
// registry table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("manager: postgres store dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("manager: postgres parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("manager: postgres connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("manager: postgres ping: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresStoreSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("manager: postgres create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// List returns all records in deterministic (name-sorted) order.
func (s *PostgresStore) List(ctx context.Context) ([]ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.pool == nil {
		return nil, errors.New("manager: postgres store is nil")
	}

	rows, err := s.pool.Query(ctx, `
SELECT payload
FROM trellis_servers
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("manager: postgres list servers: %w", err)
	}
	defer rows.Close()

	var recs []ServerRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("manager: postgres scan server: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manager: postgres server rows: %w", err)
	}

	return cloneRecords(recs), nil
}

// Get returns a record by name.
func (s *PostgresStore) Get(ctx context.Context, name string) (ServerRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ServerRecord{}, false, err
	}
	if s == nil || s.pool == nil {
		return ServerRecord{}, false, errors.New("manager: postgres store is nil")
	}

	row := s.pool.QueryRow(ctx, `
SELECT payload
FROM trellis_servers
WHERE name = $1`, name)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ServerRecord{}, false, nil
		}
		return ServerRecord{}, false, fmt.Errorf("manager: postgres get server: %w", err)
	}

	rec, err := decodeRecord(payload)
	if err != nil {
		return ServerRecord{}, false, err
	}
	return rec.Clone(), true, nil
}

// Upsert inserts or updates a record by name.
func (s *PostgresStore) Upsert(ctx context.Context, rec ServerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.pool == nil {
		return errors.New("manager: postgres store is nil")
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

	_, err = s.pool.Exec(ctx, `
INSERT INTO trellis_servers (name, payload, created_at, updated_at)
VALUES ($1, $2::jsonb, $3, $4)
ON CONFLICT (name) DO UPDATE SET
	payload = EXCLUDED.payload,
	updated_at = EXCLUDED.updated_at`,
		rec.Name,
		payload,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("manager: postgres upsert server: %w", err)
	}
	return nil
}

// Delete removes a record by name. Deleting a missing name is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.pool == nil {
		return errors.New("manager: postgres store is nil")
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM trellis_servers WHERE name = $1`, name); err != nil {
		return fmt.Errorf("manager: postgres delete server: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
