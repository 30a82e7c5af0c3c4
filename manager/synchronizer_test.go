package manager

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testTarget(t *testing.T, serverKey string, transports ...Transport) PlatformTarget {
	t.Helper()
	if len(transports) == 0 {
		transports = []Transport{TransportStdio}
	}
	return PlatformTarget{
		ID:         "test-platform",
		Name:       "Test Platform",
		ConfigPath: filepath.Join(t.TempDir(), "nested", "config.json"),
		ServerKey:  serverKey,
		Transports: transports,
	}
}

func stdioRecord(name string) ServerRecord {
	return ServerRecord{
		Name:         name,
		EntryCommand: "/envs/" + name + "/bin/python",
		EntryArgs:    []string{"/src/" + name + "/server.py"},
		Transport:    TransportStdio,
	}
}

func readConfigDoc(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatal("config file should end with a newline")
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return doc
}

func serverEntry(t *testing.T, doc map[string]any, serverKey, name string) map[string]any {
	t.Helper()
	current := doc
	for _, segment := range strings.Split(serverKey, ".") {
		next, ok := current[segment].(map[string]any)
		if !ok {
			t.Fatalf("key %q missing or not an object in %v", segment, current)
		}
		current = next
	}
	entry, ok := current[name].(map[string]any)
	if !ok {
		t.Fatalf("entry %q missing in %v", name, current)
	}
	return entry
}

func TestSynchronizerApplyCreatesSkeleton(t *testing.T) {
	target := testTarget(t, "mcpServers")
	sync := NewConfigSynchronizer(nil)

	if err := sync.Apply(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	doc := readConfigDoc(t, target.ConfigPath)
	entry := serverEntry(t, doc, "mcpServers", "weather")
	if entry["command"] != "/envs/weather/bin/python" {
		t.Fatalf("command = %v, want venv python", entry["command"])
	}
	args, ok := entry["args"].([]any)
	if !ok || len(args) != 1 || args[0] != "/src/weather/server.py" {
		t.Fatalf("args = %v, want [/src/weather/server.py]", entry["args"])
	}
	if _, present := entry["env"]; present {
		t.Fatal("env should be omitted when the record has none")
	}

	entries, err := os.ReadDir(filepath.Dir(target.ConfigPath))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file %q left behind", e.Name())
		}
	}
}

func TestSynchronizerApplyPreservesUnrelatedContent(t *testing.T) {
	target := testTarget(t, "mcpServers")
	seed := map[string]any{
		"theme": "dark",
		"mcpServers": map[string]any{
			"existing": map[string]any{"command": "/usr/bin/existing", "args": []any{}},
		},
	}
	seedConfig(t, target.ConfigPath, seed)

	sync := NewConfigSynchronizer(nil)
	if err := sync.Apply(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	doc := readConfigDoc(t, target.ConfigPath)
	if doc["theme"] != "dark" {
		t.Fatalf("theme = %v, want dark preserved", doc["theme"])
	}
	servers := doc["mcpServers"].(map[string]any)
	if _, present := servers["existing"]; !present {
		t.Fatal("existing entry was clobbered")
	}
	if _, present := servers["weather"]; !present {
		t.Fatal("weather entry missing")
	}
}

func TestSynchronizerApplyOverwritesSameKey(t *testing.T) {
	target := testTarget(t, "mcpServers")
	sync := NewConfigSynchronizer(nil)

	if err := sync.Apply(stdioRecord("weather"), target); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}

	updated := stdioRecord("weather")
	updated.EntryCommand = "/new/bin/python"
	if err := sync.Apply(updated, target); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}

	doc := readConfigDoc(t, target.ConfigPath)
	servers := doc["mcpServers"].(map[string]any)
	if len(servers) != 1 {
		t.Fatalf("len(servers) = %d, want 1 (no duplicate keys)", len(servers))
	}
	entry := serverEntry(t, doc, "mcpServers", "weather")
	if entry["command"] != "/new/bin/python" {
		t.Fatalf("command = %v, want overwritten value", entry["command"])
	}
}

func TestSynchronizerApplyNestedServerKey(t *testing.T) {
	target := testTarget(t, "mcp.servers")
	seedConfig(t, target.ConfigPath, map[string]any{
		"editor": map[string]any{"fontSize": float64(14)},
		"mcp":    map[string]any{"inputs": []any{}},
	})

	sync := NewConfigSynchronizer(nil)
	if err := sync.Apply(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	doc := readConfigDoc(t, target.ConfigPath)
	if _, present := doc["editor"]; !present {
		t.Fatal("sibling top-level key was clobbered")
	}
	mcp := doc["mcp"].(map[string]any)
	if _, present := mcp["inputs"]; !present {
		t.Fatal("sibling nested key was clobbered")
	}
	serverEntry(t, doc, "mcp.servers", "weather")
}

func TestSynchronizerApplySSEEntryShape(t *testing.T) {
	target := testTarget(t, "mcpServers", TransportStdio, TransportSSE)
	rec := ServerRecord{
		Name:        "dashboard",
		Transport:   TransportSSE,
		EndpointURL: "https://localhost:9700/sse",
		APIKey:      "k-123",
	}

	sync := NewConfigSynchronizer(nil)
	if err := sync.Apply(rec, target); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	entry := serverEntry(t, readConfigDoc(t, target.ConfigPath), "mcpServers", "dashboard")
	if entry["url"] != "https://localhost:9700/sse" {
		t.Fatalf("url = %v, want endpoint", entry["url"])
	}
	if entry["apiKey"] != "k-123" {
		t.Fatalf("apiKey = %v, want k-123", entry["apiKey"])
	}
	if entry["disabled"] != false {
		t.Fatalf("disabled = %v, want false", entry["disabled"])
	}
	if approve, ok := entry["autoApprove"].([]any); !ok || len(approve) != 0 {
		t.Fatalf("autoApprove = %v, want empty array", entry["autoApprove"])
	}
}

func TestSynchronizerApplyIncludesEnv(t *testing.T) {
	target := testTarget(t, "mcpServers")
	rec := stdioRecord("weather")
	rec.EntryEnv = map[string]string{"WEATHER_REGION": "eu"}

	sync := NewConfigSynchronizer(nil)
	if err := sync.Apply(rec, target); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	entry := serverEntry(t, readConfigDoc(t, target.ConfigPath), "mcpServers", "weather")
	env, ok := entry["env"].(map[string]any)
	if !ok || env["WEATHER_REGION"] != "eu" {
		t.Fatalf("env = %v, want WEATHER_REGION=eu", entry["env"])
	}
}

func TestSynchronizerApplyRejectsUnsupportedTransport(t *testing.T) {
	target := testTarget(t, "mcpServers", TransportStdio)
	rec := ServerRecord{Name: "dashboard", Transport: TransportSSE, EndpointURL: "https://x/sse"}

	err := NewConfigSynchronizer(nil).Apply(rec, target)
	if !IsCode(err, CodeConfigFailed) {
		t.Fatalf("Apply() error = %v, want code %s", err, CodeConfigFailed)
	}
	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Platform != "test-platform" {
		t.Fatalf("error = %v, want platform id attached", err)
	}
	if _, statErr := os.Stat(target.ConfigPath); !os.IsNotExist(statErr) {
		t.Fatal("rejected apply should not create the config file")
	}
}

func TestSynchronizerApplyInvalidJSONFails(t *testing.T) {
	target := testTarget(t, "mcpServers")
	if err := os.MkdirAll(filepath.Dir(target.ConfigPath), 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(target.ConfigPath, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := NewConfigSynchronizer(nil).Apply(stdioRecord("weather"), target)
	if !IsCode(err, CodeConfigFailed) {
		t.Fatalf("Apply() error = %v, want code %s", err, CodeConfigFailed)
	}
}

func TestSynchronizerApplyNonObjectSegmentFails(t *testing.T) {
	target := testTarget(t, "mcpServers")
	seedConfig(t, target.ConfigPath, map[string]any{"mcpServers": "oops"})

	err := NewConfigSynchronizer(nil).Apply(stdioRecord("weather"), target)
	if !IsCode(err, CodeConfigFailed) {
		t.Fatalf("Apply() error = %v, want code %s", err, CodeConfigFailed)
	}
	if !strings.Contains(err.Error(), "mcpServers") {
		t.Fatalf("error %q should name the offending key", err)
	}
}

func TestSynchronizerRemoveIdempotent(t *testing.T) {
	target := testTarget(t, "mcpServers")
	sync := NewConfigSynchronizer(nil)

	// Absent file.
	if err := sync.Remove(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Remove() on absent file error = %v", err)
	}

	// File without the key: content must stay byte-identical.
	seedConfig(t, target.ConfigPath, map[string]any{"mcpServers": map[string]any{"other": map[string]any{}}})
	before, err := os.ReadFile(target.ConfigPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if err := sync.Remove(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Remove() without key error = %v", err)
	}
	after, err := os.ReadFile(target.ConfigPath)
	if err != nil {
		t.Fatalf("ReadFile() after error = %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("Remove() without key rewrote the file")
	}
}

func TestSynchronizerRemoveDeletesOnlyTargetKey(t *testing.T) {
	target := testTarget(t, "mcpServers")
	sync := NewConfigSynchronizer(nil)

	if err := sync.Apply(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Apply(weather) error = %v", err)
	}
	if err := sync.Apply(stdioRecord("notes"), target); err != nil {
		t.Fatalf("Apply(notes) error = %v", err)
	}

	if err := sync.Remove(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	doc := readConfigDoc(t, target.ConfigPath)
	servers := doc["mcpServers"].(map[string]any)
	if _, present := servers["weather"]; present {
		t.Fatal("weather entry still present after remove")
	}
	if _, present := servers["notes"]; !present {
		t.Fatal("notes entry was deleted alongside weather")
	}
}

func TestSynchronizerInspect(t *testing.T) {
	target := testTarget(t, "mcpServers")
	sync := NewConfigSynchronizer(nil)

	present, err := sync.Inspect("weather", target)
	if err != nil || present {
		t.Fatalf("Inspect() on absent file = %v, %v, want false, nil", present, err)
	}

	if err := sync.Apply(stdioRecord("weather"), target); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	present, err = sync.Inspect("weather", target)
	if err != nil || !present {
		t.Fatalf("Inspect() after apply = %v, %v, want true, nil", present, err)
	}
}

func TestSynchronizerConfigPathIsDirectoryFails(t *testing.T) {
	target := testTarget(t, "mcpServers")
	if err := os.MkdirAll(target.ConfigPath, 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	err := NewConfigSynchronizer(nil).Apply(stdioRecord("weather"), target)
	if !IsCode(err, CodeConfigFailed) {
		t.Fatalf("Apply() error = %v, want code %s", err, CodeConfigFailed)
	}
}

func seedConfig(t *testing.T, path string, doc map[string]any) {
	t.Helper()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}
