package manager

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlatformsFile is the declarative shape of platforms.yaml. Targets with an
// id matching a builtin override that builtin; new ids are appended.
type PlatformsFile struct {
	Platforms []PlatformDeclaration `yaml:"platforms"`
}

// PlatformDeclaration defines one platform target in platforms.yaml.
type PlatformDeclaration struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name,omitempty"`
	ConfigPath string   `yaml:"config_path"`
	ServerKey  string   `yaml:"server_key,omitempty"`
	Transports []string `yaml:"transports,omitempty"`
}

// LoadPlatformsFile reads user-defined platform targets. A missing file is
// not an error; it reads as zero targets.
func LoadPlatformsFile(path string) ([]PlatformTarget, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil, nil
	}

	// #nosec G304 -- path comes from settings, constrained to local config files.
	data, err := os.ReadFile(clean)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errorf(CodeConfigFailed, "reading platforms file %q: %v", clean, err)
	}

	var file PlatformsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errorf(CodeConfigFailed, "parsing platforms file %q: %v", clean, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errorf(CodeConfigFailed, "resolve user home: %v", err)
	}

	targets := make([]PlatformTarget, 0, len(file.Platforms))
	for _, decl := range file.Platforms {
		target, err := declarationToPlatform(decl, home)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func declarationToPlatform(decl PlatformDeclaration, home string) (PlatformTarget, error) {
	id := strings.TrimSpace(decl.ID)
	if id == "" {
		return PlatformTarget{}, errorf(CodeValidation, "platform declaration is missing an id")
	}
	configPath := expandHome(os.ExpandEnv(strings.TrimSpace(decl.ConfigPath)), home)
	if configPath == "" {
		return PlatformTarget{}, errorf(CodeValidation, "platform %q is missing config_path", id)
	}

	target := PlatformTarget{
		ID:         id,
		Name:       strings.TrimSpace(decl.Name),
		ConfigPath: filepath.Clean(configPath),
		ServerKey:  strings.TrimSpace(decl.ServerKey),
	}
	if target.Name == "" {
		target.Name = id
	}
	if target.ServerKey == "" {
		target.ServerKey = "mcpServers"
	}

	if len(decl.Transports) == 0 {
		target.Transports = []Transport{TransportStdio}
	}
	for _, raw := range decl.Transports {
		switch Transport(strings.ToLower(strings.TrimSpace(raw))) {
		case TransportStdio:
			target.Transports = append(target.Transports, TransportStdio)
		case TransportSSE:
			target.Transports = append(target.Transports, TransportSSE)
		default:
			return PlatformTarget{}, errorf(CodeValidation, "platform %q: unsupported transport %q", id, raw)
		}
	}

	return target, nil
}

// MergePlatforms overlays user targets on builtins: matching ids replace,
// new ids append, and the final set is sorted by id.
func MergePlatforms(builtin, user []PlatformTarget) []PlatformTarget {
	merged := make(map[string]PlatformTarget, len(builtin)+len(user))
	for _, target := range builtin {
		merged[target.ID] = target
	}
	for _, target := range user {
		merged[target.ID] = target
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]PlatformTarget, 0, len(ids))
	for _, id := range ids {
		out = append(out, merged[id])
	}
	return out
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~"+string(filepath.Separator)) || strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
