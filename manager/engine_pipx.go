package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// pipxStrategy packages a server as a self-contained pipx application. The
// source must carry a build manifest; pipx builds and installs it into its
// own interpreter-isolated venv and exposes one executable on the bin dir.
type pipxStrategy struct {
	cfg EngineConfig
}

func (s *pipxStrategy) install(ctx context.Context, meta PackageMetadata, spec InstallSpec) (EnvironmentInfo, error) {
	if !meta.HasManifest {
		return EnvironmentInfo{}, &Error{
			Code:    CodeValidation,
			Message: fmt.Sprintf("source %q has no pyproject.toml; pipx installs need a build manifest, use --no-pipx for a managed venv", meta.SourcePath),
			Server:  spec.Name,
		}
	}

	pkg := meta.Name
	venvDir := filepath.Join(s.cfg.PipxHome, "venvs", pkg)
	binPath := filepath.Join(s.cfg.PipxBin, pkg)

	if _, err := os.Stat(venvDir); err == nil {
		s.cfg.Logger.Debug("destroying existing pipx environment",
			slog.String("server", spec.Name),
			slog.String("venv", venvDir))
		if err := s.destroy(ctx, spec.Name, pkg, venvDir); err != nil {
			return EnvironmentInfo{}, err
		}
	}

	cmd := Command{
		Path: s.cfg.Pipx,
		Args: []string{"install", meta.SourcePath},
		Env: map[string]string{
			"PIPX_HOME":    s.cfg.PipxHome,
			"PIPX_BIN_DIR": s.cfg.PipxBin,
		},
	}
	if spec.Force {
		cmd.Args = append(cmd.Args, "--force")
	}
	if _, err := runInstallCommand(ctx, s.cfg.Runner, spec.Name, cmd); err != nil {
		return EnvironmentInfo{}, err
	}

	s.cfg.Logger.Info("pipx install complete",
		slog.String("server", spec.Name),
		slog.String("package", pkg),
		slog.String("entry", binPath))

	return EnvironmentInfo{
		Location:     venvDir,
		EntryCommand: binPath,
	}, nil
}

func (s *pipxStrategy) uninstall(ctx context.Context, rec ServerRecord) error {
	pkg := pipxPackageName(rec)
	if pkg == "" {
		return nil
	}
	return s.destroy(ctx, rec.Name, pkg, rec.InstallLocation)
}

// destroy runs pipx uninstall and sweeps any venv directory pipx left behind.
// pipx reports "Nothing to uninstall" for unknown packages; that is the
// idempotent success case, not a failure.
func (s *pipxStrategy) destroy(ctx context.Context, server, pkg, venvDir string) error {
	cmd := Command{
		Path: s.cfg.Pipx,
		Args: []string{"uninstall", pkg},
		Env: map[string]string{
			"PIPX_HOME":    s.cfg.PipxHome,
			"PIPX_BIN_DIR": s.cfg.PipxBin,
		},
	}

	res, err := s.cfg.Runner.Run(ctx, cmd)
	if err != nil {
		var mErr *Error
		if errors.As(err, &mErr) {
			if mErr.Server == "" {
				mErr.Server = server
			}
			return mErr
		}
		return &Error{
			Code:    CodeInstallFailed,
			Message: fmt.Sprintf("run %q", cmd.String()),
			Server:  server,
			Stderr:  res.Stderr,
			Cause:   err,
		}
	}
	if res.ExitCode != 0 && !nothingToUninstall(res) {
		return &Error{
			Code:    CodeInstallFailed,
			Message: fmt.Sprintf("pipx uninstall %q exited with code %d", pkg, res.ExitCode),
			Server:  server,
			Stderr:  res.Stderr,
		}
	}

	if strings.TrimSpace(venvDir) != "" {
		if err := os.RemoveAll(venvDir); err != nil {
			return &Error{
				Code:    CodeInstallFailed,
				Message: fmt.Sprintf("remove leftover pipx venv %q", venvDir),
				Server:  server,
				Cause:   err,
			}
		}
	}
	return nil
}

func nothingToUninstall(res Result) bool {
	combined := strings.ToLower(res.Stdout + "\n" + res.Stderr)
	return strings.Contains(combined, "nothing to uninstall")
}

// pipxPackageName recovers the installed package name from a record. The
// install location is <pipx home>/venvs/<package>.
func pipxPackageName(rec ServerRecord) string {
	loc := strings.TrimSpace(rec.InstallLocation)
	if loc == "" {
		return ""
	}
	return filepath.Base(loc)
}
