package manager

import (
	"context"
	"slices"
	"time"
)

// Status indicates the registry-level lifecycle state of a server.
type Status string

const (
	StatusInstalled        Status = "installed"
	StatusPartiallyRemoved Status = "partially_removed"
	StatusFailed           Status = "failed"
)

// InstallMethod indicates which isolation strategy owns a server's environment.
type InstallMethod string

const (
	MethodPipx InstallMethod = "pipx"
	MethodVenv InstallMethod = "venv"
)

// Transport indicates how a platform launches or reaches a server.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
)

// ServerRecord is the persisted record for an installed MCP server.
type ServerRecord struct {
	Name                string            `json:"name"`
	SourcePath          string            `json:"source_path"`
	InstallMethod       InstallMethod     `json:"install_method"`
	InstallLocation     string            `json:"install_location"`
	EntryCommand        string            `json:"entry_command"`
	EntryArgs           []string          `json:"entry_args,omitempty"`
	EntryEnv            map[string]string `json:"entry_env,omitempty"`
	Transport           Transport         `json:"transport"`
	EndpointURL         string            `json:"endpoint_url,omitempty"`
	APIKey              string            `json:"api_key,omitempty"`
	ConfiguredPlatforms []string          `json:"configured_platforms,omitempty"`
	Status              Status            `json:"status"`
	CreatedAt           time.Time         `json:"created_at,omitempty"`
	UpdatedAt           time.Time         `json:"updated_at,omitempty"`
}

// ConfiguredFor reports whether the record already carries the platform id.
func (r ServerRecord) ConfiguredFor(platformID string) bool {
	return slices.Contains(r.ConfiguredPlatforms, platformID)
}

// AddPlatform returns the platform set grown by id, sorted and deduplicated.
func (r ServerRecord) AddPlatform(platformID string) []string {
	if r.ConfiguredFor(platformID) {
		return slices.Clone(r.ConfiguredPlatforms)
	}
	grown := append(slices.Clone(r.ConfiguredPlatforms), platformID)
	slices.Sort(grown)
	return grown
}

// RemovePlatform returns the platform set without id, order preserved.
func (r ServerRecord) RemovePlatform(platformID string) []string {
	kept := make([]string, 0, len(r.ConfiguredPlatforms))
	for _, id := range r.ConfiguredPlatforms {
		if id != platformID {
			kept = append(kept, id)
		}
	}
	return kept
}

// Clone returns a deep copy so callers can mutate without aliasing the
// stored record.
func (r ServerRecord) Clone() ServerRecord {
	out := r
	out.EntryArgs = slices.Clone(r.EntryArgs)
	out.ConfiguredPlatforms = slices.Clone(r.ConfiguredPlatforms)
	if r.EntryEnv != nil {
		out.EntryEnv = make(map[string]string, len(r.EntryEnv))
		for k, v := range r.EntryEnv {
			out.EntryEnv[k] = v
		}
	}
	return out
}

// Store abstracts registry persistence so the CLI can run against a local
// file, an embedded SQLite database, or a shared Postgres instance.
type Store interface {
	List(ctx context.Context) ([]ServerRecord, error)
	Get(ctx context.Context, name string) (ServerRecord, bool, error)
	Upsert(ctx context.Context, rec ServerRecord) error
	Delete(ctx context.Context, name string) error
}
