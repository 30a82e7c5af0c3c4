package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ConfigSynchronizer merges and removes one server's connection entry in a
// platform's JSON config without disturbing anything else in the file. All
// writes go through the same tmp-plus-rename discipline as the registry.
type ConfigSynchronizer struct {
	logger *slog.Logger
}

// NewConfigSynchronizer creates a synchronizer. A nil logger falls back to
// slog.Default().
func NewConfigSynchronizer(logger *slog.Logger) *ConfigSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigSynchronizer{logger: logger}
}

// Apply inserts or overwrites exactly the key rec.Name in target's server
// map, creating a minimal skeleton when the file is absent. Unrelated keys,
// other servers' entries included, are preserved.
func (s *ConfigSynchronizer) Apply(rec ServerRecord, target PlatformTarget) error {
	entry, err := entryForRecord(rec, target)
	if err != nil {
		return err
	}

	doc, err := loadConfigDocument(rec.Name, target)
	if err != nil {
		return err
	}

	serverMap, err := navigateServerMap(doc, target, true)
	if err != nil {
		return configError(rec.Name, target, err)
	}
	serverMap[rec.Name] = entry

	if err := saveConfigDocument(target.ConfigPath, doc); err != nil {
		return configError(rec.Name, target, err)
	}

	s.logger.Info("platform entry written",
		slog.String("server", rec.Name),
		slog.String("platform", target.ID),
		slog.String("path", target.ConfigPath))
	return nil
}

// Remove deletes exactly the key rec.Name from target's server map. An
// absent file, an absent map, or an absent key is the idempotent success
// case, not a failure.
func (s *ConfigSynchronizer) Remove(rec ServerRecord, target PlatformTarget) error {
	exists, err := configFileExists(rec.Name, target)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	doc, err := loadConfigDocument(rec.Name, target)
	if err != nil {
		return err
	}

	serverMap, err := navigateServerMap(doc, target, false)
	if err != nil {
		return configError(rec.Name, target, err)
	}
	if serverMap == nil {
		return nil
	}
	if _, present := serverMap[rec.Name]; !present {
		return nil
	}
	delete(serverMap, rec.Name)

	if err := saveConfigDocument(target.ConfigPath, doc); err != nil {
		return configError(rec.Name, target, err)
	}

	s.logger.Info("platform entry removed",
		slog.String("server", rec.Name),
		slog.String("platform", target.ID),
		slog.String("path", target.ConfigPath))
	return nil
}

// Inspect reports whether the platform's config currently carries an entry
// under name.
func (s *ConfigSynchronizer) Inspect(name string, target PlatformTarget) (bool, error) {
	exists, err := configFileExists(name, target)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	doc, err := loadConfigDocument(name, target)
	if err != nil {
		return false, err
	}

	serverMap, err := navigateServerMap(doc, target, false)
	if err != nil {
		return false, configError(name, target, err)
	}
	if serverMap == nil {
		return false, nil
	}
	_, present := serverMap[name]
	return present, nil
}

// entryForRecord shapes the platform entry for the record's transport, or
// rejects the combination the platform cannot express.
func entryForRecord(rec ServerRecord, target PlatformTarget) (map[string]any, error) {
	if !target.Supports(rec.Transport) {
		return nil, &Error{
			Code:     CodeConfigFailed,
			Message:  fmt.Sprintf("platform %q does not support %s servers (supported: %s)", target.ID, rec.Transport, transportsLabel(target.Transports)),
			Server:   rec.Name,
			Platform: target.ID,
		}
	}

	switch rec.Transport {
	case TransportStdio:
		entry := map[string]any{
			"command": rec.EntryCommand,
			"args":    argsValue(rec.EntryArgs),
		}
		if len(rec.EntryEnv) > 0 {
			env := make(map[string]any, len(rec.EntryEnv))
			for k, v := range rec.EntryEnv {
				env[k] = v
			}
			entry["env"] = env
		}
		return entry, nil
	case TransportSSE:
		return map[string]any{
			"url":         rec.EndpointURL,
			"apiKey":      rec.APIKey,
			"disabled":    false,
			"autoApprove": []any{},
		}, nil
	default:
		return nil, &Error{
			Code:     CodeValidation,
			Message:  fmt.Sprintf("record %q has unknown transport %q", rec.Name, rec.Transport),
			Server:   rec.Name,
			Platform: target.ID,
		}
	}
}

func argsValue(args []string) []any {
	out := make([]any, 0, len(args))
	for _, arg := range args {
		out = append(out, arg)
	}
	return out
}

func transportsLabel(transports []Transport) string {
	labels := make([]string, 0, len(transports))
	for _, tr := range transports {
		labels = append(labels, string(tr))
	}
	return strings.Join(labels, ", ")
}

func configFileExists(server string, target PlatformTarget) (bool, error) {
	_, err := os.Stat(target.ConfigPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, configError(server, target, fmt.Errorf("stat config: %w", err))
}

// loadConfigDocument reads the platform config as a generic JSON object. An
// absent file reads as an empty document so Apply can build the skeleton.
func loadConfigDocument(server string, target PlatformTarget) (map[string]any, error) {
	// #nosec G304 -- platform config paths come from builtin or user-declared targets.
	data, err := os.ReadFile(target.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, configError(server, target, fmt.Errorf("read config: %w", err))
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, configError(server, target, fmt.Errorf("config is not valid JSON: %w", err))
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// navigateServerMap walks the dotted ServerKey path inside doc. With create
// set, missing segments become objects; without it, a missing segment yields
// (nil, nil) so removes stay idempotent. A segment occupied by a non-object
// is an error either way.
func navigateServerMap(doc map[string]any, target PlatformTarget, create bool) (map[string]any, error) {
	current := doc
	segments := strings.Split(target.ServerKey, ".")
	for i, segment := range segments {
		value, present := current[segment]
		if !present {
			if !create {
				return nil, nil
			}
			next := map[string]any{}
			current[segment] = next
			current = next
			continue
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config key %q is not an object", strings.Join(segments[:i+1], "."))
		}
		current = nested
	}
	return current, nil
}

// saveConfigDocument writes doc atomically, creating parent directories for
// first-time skeleton files.
func saveConfigDocument(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

func configError(server string, target PlatformTarget, err error) error {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr
	}
	return &Error{
		Code:     CodeConfigFailed,
		Message:  fmt.Sprintf("%s (%s): %v", target.ID, target.ConfigPath, err),
		Server:   server,
		Platform: target.ID,
		Cause:    err,
	}
}
