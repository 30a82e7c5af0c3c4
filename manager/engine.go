package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// EnvironmentInfo describes a freshly created runtime environment and how to
// launch the server inside it.
type EnvironmentInfo struct {
	Location     string
	EntryCommand string
	EntryArgs    []string
}

// InstallSpec carries the per-install choices the engine needs beyond the
// resolved package metadata.
type InstallSpec struct {
	Name   string
	Method InstallMethod
	Force  bool
}

// EngineConfig wires the install engine. Paths must be resolved; Settings
// produces a ready-to-use config.
type EngineConfig struct {
	Runner   Runner
	Logger   *slog.Logger
	PipxHome string
	PipxBin  string
	VenvRoot string
	Python   string
	Pipx     string
}

// Engine creates and destroys on-disk runtime environments using one of two
// strategies: pipx-isolated apps or manager-owned virtual environments.
type Engine struct {
	pipx *pipxStrategy
	venv *venvStrategy
}

// NewEngine creates an engine from cfg. A nil Runner gets an ExecRunner with
// default timeout.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = NewExecRunner(cfg.Logger, 0)
	}
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Pipx == "" {
		cfg.Pipx = "pipx"
	}
	return &Engine{
		pipx: &pipxStrategy{cfg: cfg},
		venv: &venvStrategy{cfg: cfg},
	}
}

// Install creates the environment for spec.Name from meta. Any environment
// already sitting at the target location is destroyed first, never patched;
// an interrupted earlier install must not leave mixed-version artifacts.
func (e *Engine) Install(ctx context.Context, meta PackageMetadata, spec InstallSpec) (EnvironmentInfo, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return EnvironmentInfo{}, errorf(CodeValidation, "server name is required")
	}
	switch spec.Method {
	case MethodPipx:
		return e.pipx.install(ctx, meta, spec)
	case MethodVenv:
		return e.venv.install(ctx, meta, spec)
	default:
		return EnvironmentInfo{}, errorf(CodeValidation, "unknown install method %q", spec.Method)
	}
}

// Uninstall destroys the environment a record points at. Uninstalling an
// already-absent environment is a success no-op.
func (e *Engine) Uninstall(ctx context.Context, rec ServerRecord) error {
	switch rec.InstallMethod {
	case MethodPipx:
		return e.pipx.uninstall(ctx, rec)
	case MethodVenv:
		return e.venv.uninstall(rec)
	default:
		return errorf(CodeValidation, "record %q has unknown install method %q", rec.Name, rec.InstallMethod)
	}
}

// EnvironmentExists reports whether the record's install location is still on
// disk.
func (e *Engine) EnvironmentExists(rec ServerRecord) bool {
	loc := strings.TrimSpace(rec.InstallLocation)
	if loc == "" {
		return false
	}
	_, err := os.Stat(loc)
	return err == nil
}

// runInstallCommand runs cmd and maps nonzero exits to INSTALL_FAILED with
// the captured stderr attached.
func runInstallCommand(ctx context.Context, r Runner, server string, cmd Command) (Result, error) {
	res, err := r.Run(ctx, cmd)
	if err != nil {
		var mErr *Error
		if errors.As(err, &mErr) {
			if mErr.Server == "" {
				mErr.Server = server
			}
			return res, mErr
		}
		return res, &Error{
			Code:    CodeInstallFailed,
			Message: fmt.Sprintf("run %q", cmd.String()),
			Server:  server,
			Stderr:  res.Stderr,
			Cause:   err,
		}
	}
	if res.ExitCode != 0 {
		return res, &Error{
			Code:    CodeInstallFailed,
			Message: fmt.Sprintf("command %q exited with code %d", cmd.String(), res.ExitCode),
			Server:  server,
			Stderr:  res.Stderr,
		}
	}
	return res, nil
}
