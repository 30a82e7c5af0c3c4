package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ManagerConfig wires the lifecycle orchestrator.
type ManagerConfig struct {
	Store     Store
	Engine    *Engine
	Sync      *ConfigSynchronizer
	Resolver  *SourceResolver
	Platforms []PlatformTarget
	Logger    *slog.Logger
}

// Manager composes resolver, engine, synchronizer, and registry into the
// install/configure/remove operations the CLI exposes. One Manager call runs
// start-to-finish; registry state is persisted only after the filesystem and
// config mutations of that step have completed.
type Manager struct {
	store     Store
	engine    *Engine
	sync      *ConfigSynchronizer
	resolver  *SourceResolver
	platforms []PlatformTarget
	logger    *slog.Logger
}

// NewManager creates a manager from cfg.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("manager: store is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("manager: engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sync == nil {
		cfg.Sync = NewConfigSynchronizer(cfg.Logger)
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NewSourceResolver()
	}
	return &Manager{
		store:     cfg.Store,
		engine:    cfg.Engine,
		sync:      cfg.Sync,
		resolver:  cfg.Resolver,
		platforms: slices.Clone(cfg.Platforms),
		logger:    cfg.Logger,
	}, nil
}

// InstallRequest carries everything an install needs beyond the source
// directory itself.
type InstallRequest struct {
	Name        string
	SourcePath  string
	Method      InstallMethod
	Force       bool
	Transport   Transport
	EndpointURL string
	APIKey      string
	Env         map[string]string
}

var serverNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Install resolves the source, validates the request, creates the runtime
// environment, and writes the registry record last. A failed install leaves
// no new record behind.
func (m *Manager) Install(ctx context.Context, req InstallRequest) (ServerRecord, error) {
	start := time.Now()
	rec, err := m.install(ctx, req)
	emitInstallObservation(InstallObservation{
		Server:     firstNonEmpty(rec.Name, req.Name),
		Method:     req.Method,
		Forced:     req.Force,
		DurationMS: time.Since(start).Milliseconds(),
		Success:    err == nil,
		ErrorCode:  CodeOf(err),
	})
	return rec, err
}

func (m *Manager) install(ctx context.Context, req InstallRequest) (ServerRecord, error) {
	meta, err := m.resolver.Resolve(req.SourcePath)
	if err != nil {
		return ServerRecord{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = meta.Name
	}
	if !serverNamePattern.MatchString(name) {
		return ServerRecord{}, errorf(CodeValidation, "server name %q is invalid; use letters, digits, dots, dashes, underscores", name)
	}
	if req.Method != MethodPipx && req.Method != MethodVenv {
		return ServerRecord{}, errorf(CodeValidation, "install method must be %q or %q, got %q", MethodPipx, MethodVenv, req.Method)
	}

	transport := req.Transport
	if transport == "" {
		transport = TransportStdio
	}
	endpointURL := strings.TrimSpace(req.EndpointURL)
	apiKey := strings.TrimSpace(req.APIKey)
	switch transport {
	case TransportStdio:
		if endpointURL != "" {
			return ServerRecord{}, errorf(CodeValidation, "--url only applies to sse transport")
		}
		if apiKey != "" {
			return ServerRecord{}, errorf(CodeValidation, "--api-key only applies to sse transport")
		}
	case TransportSSE:
		if endpointURL == "" {
			return ServerRecord{}, errorf(CodeValidation, "sse transport requires --url")
		}
		if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
			return ServerRecord{}, errorf(CodeValidation, "endpoint url %q must start with http:// or https://", endpointURL)
		}
		if apiKey == "" {
			apiKey = uuid.NewString()
			m.logger.Info("generated api key for sse server", slog.String("server", name))
		}
	default:
		return ServerRecord{}, errorf(CodeValidation, "transport must be %q or %q, got %q", TransportStdio, TransportSSE, transport)
	}

	existing, found, err := m.store.Get(ctx, name)
	if err != nil {
		return ServerRecord{}, err
	}
	if found && !req.Force {
		return ServerRecord{}, &Error{
			Code:    CodeAlreadyExists,
			Message: fmt.Sprintf("server %q is already installed; use --force to replace it", name),
			Server:  name,
		}
	}
	if found {
		// Force replaces, never merges: the old environment goes first so a
		// method or location change cannot leave mixed artifacts behind.
		if err := m.engine.Uninstall(ctx, existing); err != nil {
			return ServerRecord{}, err
		}
	}

	env, err := m.engine.Install(ctx, meta, InstallSpec{Name: name, Method: req.Method, Force: req.Force})
	if err != nil {
		if found {
			m.markFailed(ctx, existing)
		}
		return ServerRecord{}, err
	}

	rec := ServerRecord{
		Name:            name,
		SourcePath:      meta.SourcePath,
		InstallMethod:   req.Method,
		InstallLocation: env.Location,
		EntryCommand:    env.EntryCommand,
		EntryArgs:       env.EntryArgs,
		EntryEnv:        cloneStringMap(req.Env),
		Transport:       transport,
		EndpointURL:     endpointURL,
		APIKey:          apiKey,
		Status:          StatusInstalled,
	}

	if err := m.store.Upsert(ctx, rec); err != nil {
		// Roll the fresh environment back so a registry write failure does
		// not strand an unrecorded install.
		if uninstallErr := m.engine.Uninstall(ctx, rec); uninstallErr != nil {
			m.logger.Error("rollback uninstall failed",
				slog.String("server", name),
				slog.String("error", uninstallErr.Error()))
		}
		return ServerRecord{}, err
	}

	if stored, ok, getErr := m.store.Get(ctx, name); getErr == nil && ok {
		rec = stored
	}
	m.logger.Info("server installed",
		slog.String("server", name),
		slog.String("method", string(req.Method)),
		slog.String("location", env.Location))
	return rec, nil
}

// markFailed flags a record whose environment was destroyed for a forced
// reinstall that then failed. Best-effort; the install error wins.
func (m *Manager) markFailed(ctx context.Context, rec ServerRecord) {
	rec.Status = StatusFailed
	if err := m.store.Upsert(ctx, rec); err != nil {
		m.logger.Error("marking record failed",
			slog.String("server", rec.Name),
			slog.String("error", err.Error()))
	}
}

// ConfigureFailure names one record the sweep could not configure.
type ConfigureFailure struct {
	Server string
	Err    error
}

// ConfigureReport summarizes one configure sweep over a platform.
type ConfigureReport struct {
	Platform string
	Applied  []string
	Skipped  []string
	Failed   []ConfigureFailure
}

// Configure applies every installed, not-yet-configured record to the given
// platform. Per-record failures are collected and the sweep continues, so one
// bad record cannot block the rest.
func (m *Manager) Configure(ctx context.Context, platformID string) (ConfigureReport, error) {
	target, ok := FindPlatform(m.platforms, platformID)
	if !ok {
		return ConfigureReport{}, unknownPlatformError(platformID, m.platforms)
	}

	recs, err := m.store.List(ctx)
	if err != nil {
		return ConfigureReport{}, err
	}

	report := ConfigureReport{Platform: target.ID}
	for _, rec := range recs {
		if rec.Status != StatusInstalled {
			report.Skipped = append(report.Skipped, rec.Name)
			continue
		}
		if rec.ConfiguredFor(target.ID) {
			report.Skipped = append(report.Skipped, rec.Name)
			continue
		}

		start := time.Now()
		applyErr := m.sync.Apply(rec, target)
		if applyErr == nil {
			rec.ConfiguredPlatforms = rec.AddPlatform(target.ID)
			applyErr = m.store.Upsert(ctx, rec)
		}
		emitSyncObservation(SyncObservation{
			Server:     rec.Name,
			Platform:   target.ID,
			Op:         "apply",
			DurationMS: time.Since(start).Milliseconds(),
			Success:    applyErr == nil,
			ErrorCode:  CodeOf(applyErr),
		})

		if applyErr != nil {
			report.Failed = append(report.Failed, ConfigureFailure{Server: rec.Name, Err: applyErr})
			continue
		}
		report.Applied = append(report.Applied, rec.Name)
	}

	return report, nil
}

// RemovalFailure names one platform (or the environment step, with an empty
// Platform) that removal could not finish.
type RemovalFailure struct {
	Platform string
	Err      error
}

// RemovalReport summarizes one removal run.
type RemovalReport struct {
	Server             string
	Attempted          []string
	Removed            []string
	Failed             []RemovalFailure
	EnvironmentRemoved bool
	RecordDeleted      bool
	Complete           bool
}

// Remove tears down a server. With no platform filter the whole installation
// goes: every configured platform entry, then the environment, then the
// record, which is deleted only when everything succeeded. Partial failure
// leaves a partially_removed record naming exactly the platforms still
// pending, so re-running the same command finishes the job. A filter naming
// only some configured platforms removes just those entries and keeps the
// installation.
func (m *Manager) Remove(ctx context.Context, name string, platformFilter []string) (RemovalReport, error) {
	start := time.Now()
	report, err := m.remove(ctx, name, platformFilter)
	emitRemovalObservation(RemovalObservation{
		Server:     name,
		Platforms:  report.Attempted,
		Complete:   report.Complete,
		DurationMS: time.Since(start).Milliseconds(),
		ErrorCode:  CodeOf(err),
	})
	return report, err
}

func (m *Manager) remove(ctx context.Context, name string, platformFilter []string) (RemovalReport, error) {
	rec, found, err := m.store.Get(ctx, name)
	if err != nil {
		return RemovalReport{Server: name}, err
	}
	if !found {
		return RemovalReport{Server: name}, unknownServerError(name)
	}

	targets := slices.Clone(rec.ConfiguredPlatforms)
	fullScope := true
	if len(platformFilter) > 0 {
		for _, id := range platformFilter {
			if _, ok := FindPlatform(m.platforms, id); !ok {
				return RemovalReport{Server: name}, unknownPlatformError(id, m.platforms)
			}
		}
		targets = dedupeSorted(platformFilter)
		for _, configured := range rec.ConfiguredPlatforms {
			if !slices.Contains(targets, configured) {
				fullScope = false
				break
			}
		}
	}
	slices.Sort(targets)

	report := RemovalReport{Server: name, Attempted: targets}

	for _, id := range targets {
		target, ok := FindPlatform(m.platforms, id)
		if !ok {
			// Configured under a target that has since disappeared from
			// platforms.yaml; its entry cannot be reached to remove it.
			report.Failed = append(report.Failed, RemovalFailure{
				Platform: id,
				Err:      errorf(CodeNotFound, "platform %q is no longer defined", id),
			})
			continue
		}

		syncStart := time.Now()
		removeErr := m.sync.Remove(rec, target)
		emitSyncObservation(SyncObservation{
			Server:     rec.Name,
			Platform:   id,
			Op:         "remove",
			DurationMS: time.Since(syncStart).Milliseconds(),
			Success:    removeErr == nil,
			ErrorCode:  CodeOf(removeErr),
		})
		if removeErr != nil {
			report.Failed = append(report.Failed, RemovalFailure{Platform: id, Err: removeErr})
			continue
		}
		report.Removed = append(report.Removed, id)
	}

	if fullScope {
		// The environment goes only after every platform entry was at least
		// attempted; a half-removed config never outlives its environment
		// silently.
		envErr := m.engine.Uninstall(ctx, rec)
		if envErr != nil {
			report.Failed = append(report.Failed, RemovalFailure{Platform: "", Err: envErr})
		} else {
			report.EnvironmentRemoved = true
		}
	}

	failedPlatforms := make([]string, 0, len(report.Failed))
	for _, failure := range report.Failed {
		if failure.Platform != "" {
			failedPlatforms = append(failedPlatforms, failure.Platform)
		}
	}
	slices.Sort(failedPlatforms)

	if len(report.Failed) == 0 {
		if fullScope {
			if err := m.store.Delete(ctx, name); err != nil {
				return report, err
			}
			report.RecordDeleted = true
			m.logger.Info("server removed", slog.String("server", name))
		} else {
			for _, id := range report.Removed {
				rec.ConfiguredPlatforms = rec.RemovePlatform(id)
			}
			if err := m.store.Upsert(ctx, rec); err != nil {
				return report, err
			}
			m.logger.Info("platform entries removed",
				slog.String("server", name),
				slog.String("platforms", strings.Join(report.Removed, ",")))
		}
		report.Complete = true
		return report, nil
	}

	if fullScope {
		rec.Status = StatusPartiallyRemoved
		rec.ConfiguredPlatforms = failedPlatforms
	} else {
		for _, id := range report.Removed {
			rec.ConfiguredPlatforms = rec.RemovePlatform(id)
		}
	}
	if err := m.store.Upsert(ctx, rec); err != nil {
		return report, err
	}

	return report, &Error{
		Code:    CodePartialRemoval,
		Message: fmt.Sprintf("removal of %q finished only partially: %s", name, removalFailureSummary(report.Failed)),
		Server:  name,
	}
}

func removalFailureSummary(failures []RemovalFailure) string {
	parts := make([]string, 0, len(failures))
	for _, failure := range failures {
		label := failure.Platform
		if label == "" {
			label = "environment"
		}
		parts = append(parts, fmt.Sprintf("%s (%v)", label, failure.Err))
	}
	return strings.Join(parts, "; ")
}

// List returns all registry records sorted by name.
func (m *Manager) List(ctx context.Context) ([]ServerRecord, error) {
	return m.store.List(ctx)
}

// Get returns one record, or a NOT_FOUND error naming the closest match.
func (m *Manager) Get(ctx context.Context, name string) (ServerRecord, error) {
	rec, found, err := m.store.Get(ctx, name)
	if err != nil {
		return ServerRecord{}, err
	}
	if !found {
		return ServerRecord{}, unknownServerError(name)
	}
	return rec, nil
}

// PlatformPresence compares the registry's view of one platform with the
// platform file itself.
type PlatformPresence struct {
	ID         string
	Registered bool
	Present    bool
	Err        error
}

// ServerStatus is the read-only reconciliation view for one server.
type ServerStatus struct {
	Record             ServerRecord
	EnvironmentPresent bool
	Platforms          []PlatformPresence
}

// Status inspects registry, environment, and every known platform file for
// one server without changing any of them.
func (m *Manager) Status(ctx context.Context, name string) (ServerStatus, error) {
	rec, err := m.Get(ctx, name)
	if err != nil {
		return ServerStatus{}, err
	}

	status := ServerStatus{
		Record:             rec,
		EnvironmentPresent: m.engine.EnvironmentExists(rec),
	}
	for _, target := range m.platforms {
		presence := PlatformPresence{
			ID:         target.ID,
			Registered: rec.ConfiguredFor(target.ID),
		}
		presence.Present, presence.Err = m.sync.Inspect(rec.Name, target)
		status.Platforms = append(status.Platforms, presence)
	}
	return status, nil
}

// Platforms returns the targets this manager was built with.
func (m *Manager) Platforms() []PlatformTarget {
	return slices.Clone(m.platforms)
}

func unknownPlatformError(id string, targets []PlatformTarget) *Error {
	return &Error{
		Code:     CodeNotFound,
		Message:  fmt.Sprintf("unknown platform %q (known: %s)", id, strings.Join(PlatformIDs(targets), ", ")),
		Platform: id,
	}
}

func unknownServerError(name string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("server %q is not installed", name),
		Server:  name,
	}
}

func dedupeSorted(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
