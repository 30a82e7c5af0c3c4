package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// venvStrategy owns a per-server virtual environment under the manager's venv
// root. The server launches as the venv interpreter plus its entry script, so
// sources without a build manifest still install as long as an entry script
// exists.
type venvStrategy struct {
	cfg EngineConfig
}

func (s *venvStrategy) install(ctx context.Context, meta PackageMetadata, spec InstallSpec) (EnvironmentInfo, error) {
	if !meta.HasManifest && meta.EntryScript == "" {
		return EnvironmentInfo{}, &Error{
			Code:    CodeValidation,
			Message: fmt.Sprintf("source %q has neither a pyproject.toml nor an entry script (server.py, main.py, app.py, __main__.py)", meta.SourcePath),
			Server:  spec.Name,
		}
	}

	venvDir := filepath.Join(s.cfg.VenvRoot, spec.Name)
	if _, err := os.Stat(venvDir); err == nil {
		s.cfg.Logger.Debug("destroying existing venv",
			slog.String("server", spec.Name),
			slog.String("venv", venvDir))
		if err := os.RemoveAll(venvDir); err != nil {
			return EnvironmentInfo{}, &Error{
				Code:    CodeInstallFailed,
				Message: fmt.Sprintf("remove existing venv %q", venvDir),
				Server:  spec.Name,
				Cause:   err,
			}
		}
	}

	create := Command{
		Path: s.cfg.Python,
		Args: []string{"-m", "venv", venvDir},
	}
	if _, err := runInstallCommand(ctx, s.cfg.Runner, spec.Name, create); err != nil {
		return EnvironmentInfo{}, err
	}

	pip := filepath.Join(venvDir, "bin", "pip")
	if meta.HasRequirements {
		reqs := Command{
			Path: pip,
			Args: []string{"install", "-r", filepath.Join(meta.SourcePath, "requirements.txt")},
		}
		if _, err := runInstallCommand(ctx, s.cfg.Runner, spec.Name, reqs); err != nil {
			return EnvironmentInfo{}, err
		}
	}
	if meta.HasManifest {
		pkg := Command{
			Path: pip,
			Args: []string{"install", meta.SourcePath},
		}
		if _, err := runInstallCommand(ctx, s.cfg.Runner, spec.Name, pkg); err != nil {
			return EnvironmentInfo{}, err
		}
	}

	python := filepath.Join(venvDir, "bin", "python")
	var entryArgs []string
	if meta.EntryScript != "" {
		entryArgs = []string{filepath.Join(meta.SourcePath, meta.EntryScript)}
	} else {
		entryArgs = []string{"-m", strings.ReplaceAll(meta.Name, "-", "_")}
	}

	s.cfg.Logger.Info("venv install complete",
		slog.String("server", spec.Name),
		slog.String("venv", venvDir))

	return EnvironmentInfo{
		Location:     venvDir,
		EntryCommand: python,
		EntryArgs:    entryArgs,
	}, nil
}

// uninstall removes the venv directory. Removing an absent directory is a
// success no-op.
func (s *venvStrategy) uninstall(rec ServerRecord) error {
	loc := strings.TrimSpace(rec.InstallLocation)
	if loc == "" {
		return nil
	}
	if err := os.RemoveAll(loc); err != nil {
		return &Error{
			Code:    CodeInstallFailed,
			Message: fmt.Sprintf("remove venv %q", loc),
			Server:  rec.Name,
			Cause:   err,
		}
	}
	return nil
}
