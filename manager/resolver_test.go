package manager

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", name, err)
	}
}

const weatherManifest = `[project]
name = "weather-mcp"
version = "0.1.0"
dependencies = ["mcp>=1.0"]
`

func TestResolveReadsManifestName(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "pyproject.toml", weatherManifest)
	writeSourceFile(t, dir, "server.py", "print('hi')\n")

	meta, err := NewSourceResolver().Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !meta.HasManifest {
		t.Fatal("HasManifest = false, want true")
	}
	if meta.Name != "weather-mcp" {
		t.Fatalf("Name = %q, want weather-mcp", meta.Name)
	}
	if meta.EntryScript != "server.py" {
		t.Fatalf("EntryScript = %q, want server.py", meta.EntryScript)
	}
	if meta.HasRequirements {
		t.Fatal("HasRequirements = true, want false")
	}
}

func TestResolveFallsBackToDirectoryName(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "notes-server")
	if err := os.Mkdir(dir, 0o750); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	writeSourceFile(t, dir, "main.py", "print('hi')\n")
	writeSourceFile(t, dir, "requirements.txt", "mcp\n")

	meta, err := NewSourceResolver().Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if meta.HasManifest {
		t.Fatal("HasManifest = true, want false")
	}
	if meta.Name != "notes-server" {
		t.Fatalf("Name = %q, want notes-server", meta.Name)
	}
	if meta.EntryScript != "main.py" {
		t.Fatalf("EntryScript = %q, want main.py", meta.EntryScript)
	}
	if !meta.HasRequirements {
		t.Fatal("HasRequirements = false, want true")
	}
}

func TestResolveFindsNameDerivedEntryScript(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "todo-list")
	if err := os.Mkdir(dir, 0o750); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}
	writeSourceFile(t, dir, "todo_list.py", "print('hi')\n")

	meta, err := NewSourceResolver().Resolve(dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if meta.EntryScript != "todo_list.py" {
		t.Fatalf("EntryScript = %q, want todo_list.py", meta.EntryScript)
	}
}

func TestResolveMissingPathIsNotFound(t *testing.T) {
	_, err := NewSourceResolver().Resolve(filepath.Join(t.TempDir(), "absent"))
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("Resolve() error = %v, want code %s", err, CodeNotFound)
	}
}

func TestResolveFileInsteadOfDirIsNotFound(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "plain.txt", "x")

	_, err := NewSourceResolver().Resolve(filepath.Join(dir, "plain.txt"))
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("Resolve() error = %v, want code %s", err, CodeNotFound)
	}
}

func TestResolveEmptyPathIsValidation(t *testing.T) {
	_, err := NewSourceResolver().Resolve("   ")
	if !IsCode(err, CodeValidation) {
		t.Fatalf("Resolve() error = %v, want code %s", err, CodeValidation)
	}
}

func TestResolveBrokenManifestIsValidation(t *testing.T) {
	dir := t.TempDir()
	writeSourceFile(t, dir, "pyproject.toml", "[project\nname =")

	_, err := NewSourceResolver().Resolve(dir)
	if !IsCode(err, CodeValidation) {
		t.Fatalf("Resolve() error = %v, want code %s", err, CodeValidation)
	}
}
