package manager

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// PlatformTarget describes one host integration: where its config file lives,
// which key inside it holds the server map, and which transports its entry
// shape can express.
type PlatformTarget struct {
	ID         string
	Name       string
	ConfigPath string
	ServerKey  string
	Transports []Transport
}

// Supports reports whether the platform's entry shape can express tr.
func (t PlatformTarget) Supports(tr Transport) bool {
	return slices.Contains(t.Transports, tr)
}

// BuiltinPlatforms returns the host integrations trellis knows out of the
// box, with config paths resolved for the current OS. User-defined targets
// from platforms.yaml are merged on top by Settings.Platforms.
func BuiltinPlatforms() ([]PlatformTarget, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errorf(CodeConfigFailed, "resolve user home: %v", err)
	}
	return builtinPlatformsFor(runtime.GOOS, home), nil
}

func builtinPlatformsFor(goos, home string) []PlatformTarget {
	appSupport := filepath.Join(home, ".config")
	if goos == "darwin" {
		appSupport = filepath.Join(home, "Library", "Application Support")
	}
	if goos == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			appSupport = appData
		}
	}

	return []PlatformTarget{
		{
			ID:         "claude-desktop",
			Name:       "Claude Desktop",
			ConfigPath: filepath.Join(appSupport, "Claude", "claude_desktop_config.json"),
			ServerKey:  "mcpServers",
			Transports: []Transport{TransportStdio},
		},
		{
			ID:         "cline",
			Name:       "Cline",
			ConfigPath: filepath.Join(appSupport, "Code", "User", "globalStorage", "saoudrizwan.claude-dev", "settings", "cline_mcp_settings.json"),
			ServerKey:  "mcpServers",
			Transports: []Transport{TransportStdio, TransportSSE},
		},
		{
			ID:         "cursor",
			Name:       "Cursor",
			ConfigPath: filepath.Join(home, ".cursor", "mcp.json"),
			ServerKey:  "mcpServers",
			Transports: []Transport{TransportStdio, TransportSSE},
		},
		{
			ID:         "vscode",
			Name:       "VS Code",
			ConfigPath: filepath.Join(appSupport, "Code", "User", "settings.json"),
			ServerKey:  "mcp.servers",
			Transports: []Transport{TransportStdio, TransportSSE},
		},
	}
}

// FindPlatform returns the target with the given id.
func FindPlatform(targets []PlatformTarget, id string) (PlatformTarget, bool) {
	clean := strings.TrimSpace(id)
	for _, target := range targets {
		if target.ID == clean {
			return target, true
		}
	}
	return PlatformTarget{}, false
}

// PlatformIDs returns the ids of targets in their defined order.
func PlatformIDs(targets []PlatformTarget) []string {
	ids := make([]string, 0, len(targets))
	for _, target := range targets {
		ids = append(ids, target.ID)
	}
	return ids
}
