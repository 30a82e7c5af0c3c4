package manager

import (
	"context"
	"path/filepath"
	"strings"
)

// OpenStore selects a registry backend from a DSN:
//
//	""                        default JSON file at ~/.trellis/servers.json
//	postgres:// postgresql::  shared PostgreSQL registry
//	*.json                    JSON file at the given path
//	anything else             SQLite database (path or file: DSN)
func OpenStore(ctx context.Context, dsn string) (Store, error) {
	clean := strings.TrimSpace(dsn)
	switch {
	case clean == "":
		return NewDefaultFileStore()
	case strings.HasPrefix(clean, "postgres://") || strings.HasPrefix(clean, "postgresql://"):
		return NewPostgresStore(ctx, clean)
	case strings.EqualFold(filepath.Ext(clean), ".json"):
		return NewFileStore(clean), nil
	default:
		return NewSQLiteStore(clean)
	}
}

// CloseStore releases backend resources for stores that hold any. File and
// memory stores have nothing to release.
func CloseStore(s Store) error {
	switch v := s.(type) {
	case *SQLiteStore:
		return v.Close()
	case *PostgresStore:
		v.Close()
		return nil
	default:
		return nil
	}
}
