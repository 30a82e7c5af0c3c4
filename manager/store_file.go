package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	fileStoreVersionV1 = "1"
	defaultStoreDir    = ".trellis"
	defaultStoreDB     = "servers.json"
)

var errEmptyStorePath = errors.New("manager: file store path is empty")

type fileStoreDocument struct {
	Version string         `json:"version"`
	Servers []ServerRecord `json:"servers"`
}

// FileStore persists server records in a local JSON file. Writes go through a
// temp file plus rename so a crash never leaves a truncated registry behind.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed registry at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// NewDefaultFileStore creates the registry at ~/.trellis/servers.json.
func NewDefaultFileStore() (*FileStore, error) {
	path, err := DefaultStorePath()
	if err != nil {
		return nil, err
	}
	return NewFileStore(path), nil
}

// DefaultStorePath returns the default registry file path.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("manager: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultStoreDB), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// List returns all records in deterministic (name-sorted) order.
func (s *FileStore) List(ctx context.Context) ([]ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("manager: file store is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs, err := s.load()
	if err != nil {
		return nil, err
	}
	return cloneRecords(recs), nil
}

// Get returns a record by name.
func (s *FileStore) Get(ctx context.Context, name string) (ServerRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ServerRecord{}, false, err
	}

	recs, err := s.List(ctx)
	if err != nil {
		return ServerRecord{}, false, err
	}

	for _, rec := range recs {
		if rec.Name == name {
			return rec, true, nil
		}
	}
	return ServerRecord{}, false, nil
}

// Upsert inserts or updates a record by name.
func (s *FileStore) Upsert(ctx context.Context, rec ServerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("manager: file store is nil")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return errors.New("manager: server name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	index := -1
	for i := range recs {
		if recs[i].Name == rec.Name {
			index = i
			break
		}
	}

	if rec.Status == "" {
		rec.Status = StatusInstalled
	}
	if rec.CreatedAt.IsZero() {
		if index >= 0 && !recs[index].CreatedAt.IsZero() {
			rec.CreatedAt = recs[index].CreatedAt
		} else {
			rec.CreatedAt = now
		}
	}
	rec.UpdatedAt = now

	if index >= 0 {
		recs[index] = rec
	} else {
		recs = append(recs, rec)
	}

	return s.save(recs)
}

// Delete removes a record by name. Deleting a missing name is a no-op.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("manager: file store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.load()
	if err != nil {
		return err
	}

	filtered := make([]ServerRecord, 0, len(recs))
	for _, rec := range recs {
		if rec.Name != name {
			filtered = append(filtered, rec)
		}
	}
	return s.save(filtered)
}

func (s *FileStore) load() ([]ServerRecord, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, errEmptyStorePath
	}

	// #nosec G304 -- path is configured by caller and constrained to local filesystem usage.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []ServerRecord{}, nil
		}
		return nil, fmt.Errorf("manager: read registry: %w", err)
	}
	if len(data) == 0 {
		return []ServerRecord{}, nil
	}

	var doc fileStoreDocument
	if err := json.Unmarshal(data, &doc); err == nil && doc.Servers != nil {
		sortRecords(doc.Servers)
		return doc.Servers, nil
	}

	// Backward-compatibility: permit a plain array payload.
	var recs []ServerRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("manager: decode registry: %w", err)
	}
	sortRecords(recs)
	return recs, nil
}

func (s *FileStore) save(recs []ServerRecord) error {
	if strings.TrimSpace(s.path) == "" {
		return errEmptyStorePath
	}

	recs = cloneRecords(recs)
	sortRecords(recs)

	doc := fileStoreDocument{
		Version: fileStoreVersionV1,
		Servers: recs,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("manager: encode registry: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("manager: create registry dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("manager: write temp registry file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("manager: replace registry file: %w", err)
	}
	return nil
}

func sortRecords(recs []ServerRecord) {
	slices.SortFunc(recs, func(a, b ServerRecord) int {
		return strings.Compare(a.Name, b.Name)
	})
}

func cloneRecords(in []ServerRecord) []ServerRecord {
	out := make([]ServerRecord, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

var _ Store = (*FileStore)(nil)
