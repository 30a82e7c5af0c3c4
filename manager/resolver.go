package manager

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// PackageMetadata describes what Resolve learned about a source directory.
// HasManifest=false is not an error; it constrains which install methods are
// legal downstream.
type PackageMetadata struct {
	Name            string
	SourcePath      string
	HasManifest     bool
	ManifestPath    string
	EntryScript     string
	HasRequirements bool
}

// SourceResolver inspects a candidate source directory and produces package
// metadata. Pure reads, no side effects.
type SourceResolver struct{}

// NewSourceResolver creates a resolver.
func NewSourceResolver() *SourceResolver {
	return &SourceResolver{}
}

const manifestFileName = "pyproject.toml"

var entryScriptCandidates = []string{"server.py", "main.py", "app.py", "__main__.py"}

// Resolve reads the directory for a package name (from the manifest if
// present, else the directory basename), the entry script, and dependency
// declarations.
func (r *SourceResolver) Resolve(path string) (PackageMetadata, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return PackageMetadata{}, errorf(CodeValidation, "source path is required")
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return PackageMetadata{}, newError(CodeValidation, fmt.Sprintf("resolve source path %q", clean), err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return PackageMetadata{}, errorf(CodeNotFound, "source path %q does not exist", abs)
		}
		return PackageMetadata{}, newError(CodeValidation, fmt.Sprintf("stat source path %q", abs), err)
	}
	if !info.IsDir() {
		return PackageMetadata{}, errorf(CodeNotFound, "source path %q is not a directory", abs)
	}

	meta := PackageMetadata{
		Name:       filepath.Base(abs),
		SourcePath: abs,
	}

	manifestPath := filepath.Join(abs, manifestFileName)
	if _, err := os.Stat(manifestPath); err == nil {
		meta.HasManifest = true
		meta.ManifestPath = manifestPath
		name, err := manifestProjectName(manifestPath)
		if err != nil {
			return PackageMetadata{}, err
		}
		if name != "" {
			meta.Name = name
		}
	}

	if _, err := os.Stat(filepath.Join(abs, "requirements.txt")); err == nil {
		meta.HasRequirements = true
	}

	meta.EntryScript = probeEntryScript(abs, meta.Name)

	return meta, nil
}

// manifestProjectName extracts [project] name from a pyproject manifest.
func manifestProjectName(manifestPath string) (string, error) {
	// #nosec G304 -- manifest path is derived from the user-supplied source dir.
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", newError(CodeValidation, fmt.Sprintf("read manifest %q", manifestPath), err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return "", newError(CodeValidation, fmt.Sprintf("parse manifest %q", manifestPath), err)
	}
	return strings.TrimSpace(v.GetString("project.name")), nil
}

// probeEntryScript returns the first conventional entry script present in the
// source directory, or "" when none exists.
func probeEntryScript(dir, name string) string {
	candidates := slices.Concat(entryScriptCandidates, nameScriptCandidates(name))
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if info, err := os.Stat(filepath.Join(dir, candidate)); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func nameScriptCandidates(name string) []string {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return nil
	}
	out := []string{clean + ".py"}
	if underscored := strings.ReplaceAll(clean, "-", "_"); underscored != clean {
		out = append(out, underscored+".py")
	}
	return out
}
